package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"clusterfs/pkg/log"
	"clusterfs/pkg/models"
)

// Upload sends the file at path as a new document of kind. Attributes are
// sent as additional form fields.
func (c *Client) Upload(ctx context.Context, kind, path, contentType string, attributes map[string]string) (*models.Document, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	boundary := fmt.Sprintf("clusterfs-%d", time.Now().UnixNano())
	if err := validateBoundary(boundary); err != nil {
		return nil, err
	}

	// Every attempt reopens the file, so retries resend the whole body.
	body := retryablehttp.ReaderFunc(func() (io.Reader, error) {
		return createStreamingBody(ctx, path, contentType, boundary, attributes)
	})

	req, err := c.newRequest(ctx, http.MethodPost, "/documents/"+url.PathEscape(kind), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)

	var document models.Document
	if err := c.do(req, &document); err != nil {
		return nil, err
	}
	return &document, nil
}

func createStreamingBody(ctx context.Context, path, contentType, boundary string, attributes map[string]string) (io.Reader, error) {
	//nolint:gosec // path is supplied by the operator
	src, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	pipeReader, pipeWriter := io.Pipe()

	go func() {
		defer func() {
			if closeErr := src.Close(); closeErr != nil {
				log.Warn().Err(closeErr).Msg("Failed to close upload source")
			}
			if closeErr := pipeWriter.Close(); closeErr != nil && !errors.Is(closeErr, io.ErrClosedPipe) {
				log.Warn().Err(closeErr).Msg("Failed to close pipe writer")
			}
		}()

		writer := multipart.NewWriter(pipeWriter)
		if err := writer.SetBoundary(boundary); err != nil {
			pipeWriter.CloseWithError(err)
			return
		}

		for name, value := range attributes {
			if err := writer.WriteField(name, value); err != nil {
				pipeWriter.CloseWithError(err)
				return
			}
		}

		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(path)))
		if contentType != "" {
			header.Set("Content-Type", contentType)
		}
		part, err := writer.CreatePart(header)
		if err != nil {
			pipeWriter.CloseWithError(err)
			return
		}

		if _, err := io.Copy(part, src); err != nil {
			pipeWriter.CloseWithError(err)
			return
		}

		if err := writer.Close(); err != nil {
			pipeWriter.CloseWithError(err)
			return
		}
	}()

	go func() {
		<-ctx.Done()
		pipeWriter.CloseWithError(ctx.Err())
	}()

	return pipeReader, nil
}

func validateBoundary(boundary string) error {
	writer := multipart.NewWriter(io.Discard)
	defer func() {
		if closeErr := writer.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close boundary validator")
		}
	}()
	return writer.SetBoundary(boundary)
}
