// Package objstore uploads finished session recordings to an S3 compatible
// bucket (AWS, R2, MinIO) with SigV4 signed path-style PUTs.
package objstore

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"
)

const (
	algorithm  = "AWS4-HMAC-SHA256"
	service    = "s3"
	amzDateFmt = "20060102T150405Z"
)

type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

type Client struct {
	endpoint string
	bucket   string
	region   string
	creds    Credentials
	http     *http.Client

	now func() time.Time
}

// NewClient checks the endpoint and returns a client for bucket. An empty
// region signs for "auto", which R2 expects.
func NewClient(endpoint, bucket, region string, creds Credentials) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	bucket = strings.TrimSpace(bucket)
	creds.AccessKeyID = strings.TrimSpace(creds.AccessKeyID)
	creds.SecretAccessKey = strings.TrimSpace(creds.SecretAccessKey)
	if endpoint == "" || bucket == "" {
		return nil, fmt.Errorf("objstore: endpoint and bucket are required")
	}
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return nil, fmt.Errorf("objstore: credentials are required")
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("objstore: parse endpoint: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("objstore: invalid endpoint %q", endpoint)
	}
	if strings.TrimSpace(region) == "" {
		region = "auto"
	}
	return &Client{
		endpoint: strings.TrimRight(u.String(), "/"),
		bucket:   bucket,
		region:   strings.TrimSpace(region),
		creds:    creds,
		http:     &http.Client{Timeout: 2 * time.Minute},
		now:      time.Now,
	}, nil
}

// PutFile uploads localPath as key.
func (c *Client) PutFile(ctx context.Context, key, localPath string) error {
	key = cleanKey(key)
	if key == "" {
		return fmt.Errorf("objstore: bad object key")
	}
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	if st.IsDir() {
		return fmt.Errorf("objstore: %s is a directory", localPath)
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	payloadHash := hex.EncodeToString(h.Sum(nil))
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	uri := "/" + c.bucket + "/" + escapeKey(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.endpoint+uri, f)
	if err != nil {
		return err
	}
	req.ContentLength = st.Size()
	req.Header.Set("Content-Type", "application/zstd")
	c.sign(req, uri, payloadHash)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 == 2 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	return fmt.Errorf("objstore: put %s: status %d: %s", key, resp.StatusCode, strings.TrimSpace(string(body)))
}

// sign sets the SigV4 headers over host, payload hash and date.
func (c *Client) sign(req *http.Request, uri, payloadHash string) {
	now := c.now().UTC()
	stamp := now.Format(amzDateFmt)
	day := now.Format("20060102")
	host := req.URL.Host

	req.Header.Set("x-amz-content-sha256", payloadHash)
	req.Header.Set("x-amz-date", stamp)

	const signed = "host;x-amz-content-sha256;x-amz-date"
	canonical := strings.Join([]string{
		req.Method,
		uri,
		"",
		"host:" + host + "\nx-amz-content-sha256:" + payloadHash + "\nx-amz-date:" + stamp + "\n",
		signed,
		payloadHash,
	}, "\n")
	scope := day + "/" + c.region + "/" + service + "/aws4_request"
	sum := sha256.Sum256([]byte(canonical))
	toSign := algorithm + "\n" + stamp + "\n" + scope + "\n" + hex.EncodeToString(sum[:])

	key := hmacSum([]byte("AWS4"+c.creds.SecretAccessKey), day)
	for _, part := range []string{c.region, service, "aws4_request"} {
		key = hmacSum(key, part)
	}
	sig := hex.EncodeToString(hmacSum(key, toSign))
	req.Header.Set("Authorization", fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		algorithm, c.creds.AccessKeyID, scope, signed, sig))
}

func hmacSum(key []byte, data string) []byte {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(data))
	return m.Sum(nil)
}

func cleanKey(key string) string {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	clean := strings.TrimPrefix(path.Clean("/"+key), "/")
	if clean == "" || clean == "." {
		return ""
	}
	return clean
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
