package tzsource

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

const (
	// DefaultBaseURL is the IANA data server.
	DefaultBaseURL = "https://data.iana.org/time-zones/"
	latestPath     = "tzdata-latest.tar.gz"
	// Data files start with this line.
	dataFileMagic = "# tzdb data for"
)

// Release is an unpacked tzdata archive.
type Release struct {
	// Version is the release, such as "2024b".
	Version string
	// Files maps data file names such as "europe" to their content.
	Files map[string][]byte
}

// Parse parses all data files of the release in name order and merges
// them.
func (r *Release) Parse() (File, error) {
	names := make([]string, 0, len(r.Files))
	for name := range r.Files {
		names = append(names, name)
	}
	slices.Sort(names)
	files := make([]File, 0, len(names))
	for _, name := range names {
		f, err := Parse(bytes.NewReader(r.Files[name]))
		if err != nil {
			return File{}, fmt.Errorf("%s: %w", name, err)
		}
		files = append(files, f)
	}
	return Merge(files...), nil
}

// ReadArchive unpacks a gzip-compressed tar archive as published at
// https://data.iana.org/time-zones/releases/. Files that do not start with
// the data file header, such as the leapseconds file, are left out.
func ReadArchive(r io.Reader) (*Release, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("read gzip: %w", err)
	}
	tr := tar.NewReader(gz)
	release := &Release{Files: make(map[string][]byte)}
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", hdr.Name, err)
		}
		switch {
		case hdr.Name == "version":
			release.Version = strings.TrimSpace(string(data))
		case bytes.HasPrefix(data, []byte(dataFileMagic)):
			release.Files[hdr.Name] = data
		}
	}
	if len(release.Files) == 0 {
		return nil, errors.New("no data files found")
	}
	if release.Version == "" {
		return nil, errors.New("no version found")
	}
	return release, nil
}

// Client downloads releases. The zero value uses http.DefaultClient and
// DefaultBaseURL.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return http.DefaultClient
	}
	return c.HTTPClient
}

// Latest downloads the latest release. With a non-empty etag the request
// is conditional: if the server answers 304 Not Modified, the release is
// nil and etag is returned unchanged.
func (c *Client) Latest(ctx context.Context, etag string) (*Release, string, error) {
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.JoinPath(base, latestPath)
	if err != nil {
		return nil, "", fmt.Errorf("join URL: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("GET %s: %w", u, err)
	}
	defer func() {
		// Drain so that the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotModified:
		return nil, etag, nil
	default:
		return nil, "", fmt.Errorf("GET %s: unexpected status: %s", u, resp.Status)
	}
	release, err := ReadArchive(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("GET %s: %w", u, err)
	}
	return release, resp.Header.Get("ETag"), nil
}
