package extensions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"path"
	"regexp"
	"strings"

	"github.com/storysync/storysync-api/internal/hooks"
	"github.com/storysync/storysync-api/pkg/httpclient"
	"github.com/storysync/storysync-api/pkg/logger"
	"github.com/storysync/storysync-api/pkg/retry"
	"go.uber.org/zap"
)

// maxImageBytes caps a single sideloaded image download.
const maxImageBytes = 20 << 20

var imgSrcPattern = regexp.MustCompile(`<img[^>]+src=["']([^"']+)["']`)

// PostContentStore is the slice of the post store the sideloader needs.
type PostContentStore interface {
	GetPostContent(ctx context.Context, id int64) (string, error)
	UpdatePostContent(ctx context.Context, id int64, content string) error
}

// MediaUploader stores downloaded media and returns its public URL.
type MediaUploader interface {
	Upload(ctx context.Context, data []byte, key, contentType string) (string, error)
}

// ImageSideloader copies remote images referenced by a post's content into
// local media storage and rewrites the content to point at the copies.
type ImageSideloader struct {
	posts      PostContentStore
	media      MediaUploader
	httpClient httpclient.Client
	localHost  string
}

// NewImageSideloader creates a sideloader. localHost is the host of the media
// store's public URLs; images already served from it are left alone.
func NewImageSideloader(posts PostContentStore, media MediaUploader, httpClient httpclient.Client, localHost string) *ImageSideloader {
	return &ImageSideloader{
		posts:      posts,
		media:      media,
		httpClient: httpClient,
		localHost:  localHost,
	}
}

// Register subscribes the sideloader to the publish pipeline.
func (s *ImageSideloader) Register(bus *hooks.Bus) {
	bus.OnAction(hooks.SideloadImagesAction, func(ctx context.Context, payload any) error {
		postID, ok := payload.(int64)
		if !ok {
			return fmt.Errorf("sideload: unexpected payload type %T", payload)
		}
		return s.Sideload(ctx, postID)
	})
}

// Sideload processes a single post.
func (s *ImageSideloader) Sideload(ctx context.Context, postID int64) error {
	content, err := s.posts.GetPostContent(ctx, postID)
	if err != nil {
		return fmt.Errorf("sideload: load post %d: %w", postID, err)
	}

	remote := s.remoteImageURLs(content)
	if len(remote) == 0 {
		return nil
	}

	rewritten := content
	sideloaded := 0
	for _, src := range remote {
		localURL, err := s.sideloadOne(ctx, postID, src)
		if err != nil {
			// A single unreachable image should not block the rest.
			logger.Warn("Image sideload failed",
				zap.Int64("post_id", postID),
				zap.String("src", src),
				zap.Error(err))
			continue
		}
		rewritten = strings.ReplaceAll(rewritten, src, localURL)
		sideloaded++
	}

	if sideloaded == 0 || rewritten == content {
		return nil
	}

	if err := s.posts.UpdatePostContent(ctx, postID, rewritten); err != nil {
		return fmt.Errorf("sideload: update post %d: %w", postID, err)
	}

	logger.Info("Sideloaded post images",
		zap.Int64("post_id", postID),
		zap.Int("count", sideloaded))
	return nil
}

// remoteImageURLs extracts deduplicated http(s) image sources not already
// served from local media storage.
func (s *ImageSideloader) remoteImageURLs(content string) []string {
	matches := imgSrcPattern.FindAllStringSubmatch(content, -1)
	seen := make(map[string]struct{}, len(matches))
	var urls []string
	for _, m := range matches {
		src := m[1]
		if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
			continue
		}
		if s.localHost != "" && strings.Contains(src, s.localHost) {
			continue
		}
		if _, ok := seen[src]; ok {
			continue
		}
		seen[src] = struct{}{}
		urls = append(urls, src)
	}
	return urls
}

func (s *ImageSideloader) sideloadOne(ctx context.Context, postID int64, src string) (string, error) {
	var data []byte
	var contentType string

	err := retry.Do(ctx, retry.DownloadConfig(), "image_download", func() error {
		resp, err := s.httpClient.Get(src)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
		if err != nil {
			return err
		}
		if len(body) > maxImageBytes {
			return fmt.Errorf("image exceeds %d bytes", maxImageBytes)
		}

		data = body
		contentType = resp.Header.Get("Content-Type")
		return nil
	})
	if err != nil {
		return "", err
	}

	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	key := objectKey(postID, src)
	var localURL string
	err = retry.Do(ctx, retry.StorageConfig(), "image_upload", func() error {
		url, err := s.media.Upload(ctx, data, key, contentType)
		if err != nil {
			return err
		}
		localURL = url
		return nil
	})
	if err != nil {
		return "", err
	}

	return localURL, nil
}

// objectKey builds a stable storage key so re-publishing a story does not
// duplicate its images.
func objectKey(postID int64, src string) string {
	sum := sha256.Sum256([]byte(src))
	ext := path.Ext(strings.SplitN(path.Base(src), "?", 2)[0])
	if ext == "" || len(ext) > 5 {
		ext = ".img"
	}
	return fmt.Sprintf("posts/%d/%s%s", postID, hex.EncodeToString(sum[:8]), ext)
}
