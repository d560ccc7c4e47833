package terminology

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ParseCSV reads "code,description" rows. Blank lines are skipped, as is a
// leading "code,description" header. Fields are trimmed; descriptions
// containing commas must be quoted.
func ParseCSV(r io.Reader) ([]ProcedureCode, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var codes []ProcedureCode
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse CPT codes: %w", err)
		}
		line, _ := cr.FieldPos(0)

		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		if len(record) != 2 {
			return nil, fmt.Errorf("parse CPT codes: line %d: expected 2 fields, got %d", line, len(record))
		}

		code := strings.TrimSpace(record[0])
		desc := strings.TrimSpace(record[1])
		if len(codes) == 0 && strings.EqualFold(code, "code") && strings.EqualFold(desc, "description") {
			continue
		}
		if code == "" {
			return nil, fmt.Errorf("parse CPT codes: line %d: empty code", line)
		}
		codes = append(codes, ProcedureCode{Code: code, Description: desc})
	}
	return codes, nil
}

// SourceOptions configures access to remote reference data.
type SourceOptions struct {
	// EndpointURL overrides the S3 endpoint, e.g. for MinIO or LocalStack.
	EndpointURL string
}

// OpenSource opens CPT reference data from a local path or an s3://bucket/key
// URI. The caller closes the returned reader.
func OpenSource(ctx context.Context, uri string, opts SourceOptions) (io.ReadCloser, error) {
	if !strings.HasPrefix(uri, "s3://") {
		f, err := os.Open(uri)
		if err != nil {
			return nil, fmt.Errorf("open CPT source: %w", err)
		}
		return f, nil
	}

	bucket, key, err := parseS3URI(uri)
	if err != nil {
		return nil, err
	}
	client, err := newS3Client(ctx, opts)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

func parseS3URI(uri string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(uri, "s3://")
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid S3 URI %q: want s3://bucket/key", uri)
	}
	return bucket, key, nil
}

func newS3Client(ctx context.Context, opts SourceOptions) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return newS3ClientFromConfig(cfg, opts), nil
}

// newS3ClientFromConfig keeps the shared config (retryer, region, credentials)
// and points the client at opts.EndpointURL when one is set. Custom endpoints
// are S3-compatible stores that address buckets by path.
func newS3ClientFromConfig(cfg aws.Config, opts SourceOptions) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.EndpointURL != "" {
			o.BaseEndpoint = aws.String(opts.EndpointURL)
		}
		o.UsePathStyle = o.BaseEndpoint != nil
	})
}
