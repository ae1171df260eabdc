package blob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/bytedance/sonic"

	"github.com/taskrelay/server/internal/config"
	"github.com/taskrelay/server/internal/modules/model"
)

type S3Deps struct {
	Client   *s3.Client
	Uploader *manager.Uploader
	Bucket   string
	SSE      *s3types.ServerSideEncryption
}

func NewS3(ctx context.Context, cfg *config.Config) (*S3Deps, error) {
	loadOpts := []func(*awsCfg.LoadOptions) error{
		awsCfg.WithRegion(cfg.S3.Region),
	}
	if cfg.S3.AccessKey != "" && cfg.S3.SecretKey != "" {
		loadOpts = append(loadOpts, awsCfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3.AccessKey, cfg.S3.SecretKey, ""),
		))
	}

	acfg, err := awsCfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(acfg, func(o *s3.Options) {
		if ep := normalizeEndpoint(cfg.S3.Endpoint); ep != "" {
			o.BaseEndpoint = aws.String(ep)
		}
		o.UsePathStyle = cfg.S3.UsePathStyle
	})

	var sse *s3types.ServerSideEncryption
	if cfg.S3.SSE != "" {
		v := s3types.ServerSideEncryption(cfg.S3.SSE)
		sse = &v
	}

	return &S3Deps{
		Client:   client,
		Uploader: manager.NewUploader(client),
		Bucket:   cfg.S3.Bucket,
		SSE:      sse,
	}, nil
}

func normalizeEndpoint(ep string) string {
	ep = strings.TrimSpace(ep)
	if ep == "" {
		return ""
	}
	if !strings.HasPrefix(ep, "http://") && !strings.HasPrefix(ep, "https://") {
		ep = "https://" + ep
	}
	u, err := url.Parse(ep)
	if err != nil {
		return ""
	}
	return u.String()
}

type UploadedMeta struct {
	Bucket string
	Key    string
	ETag   string
	SHA256 string
	SizeB  int64
}

// Transcript is the archived form of a finished task.
type Transcript struct {
	Task       *model.Task      `json:"task"`
	Messages   []*model.Message `json:"messages"`
	ArchivedAt time.Time        `json:"archived_at"`
}

// TranscriptKey lays archives out by task and day. The content hash keeps a
// re-archive of the same task from clobbering an earlier snapshot.
func TranscriptKey(taskID string, at time.Time, sumHex string) string {
	return fmt.Sprintf("transcripts/%s/%s/%s.json", taskID, at.UTC().Format("2006/01/02"), sumHex)
}

func (u *S3Deps) ArchiveTranscript(ctx context.Context, task *model.Task, msgs []*model.Message) (*UploadedMeta, error) {
	now := time.Now().UTC()
	body, err := sonic.Marshal(Transcript{Task: task, Messages: msgs, ArchivedAt: now})
	if err != nil {
		return nil, fmt.Errorf("marshal transcript: %w", err)
	}
	sum := sha256.Sum256(body)
	sumHex := hex.EncodeToString(sum[:])
	return u.UploadJSON(ctx, TranscriptKey(task.ID.String(), now, sumHex), sumHex, body, map[string]string{
		"task_id": task.ID.String(),
		"status":  string(task.Status),
	})
}

func (u *S3Deps) UploadJSON(ctx context.Context, key, sumHex string, body []byte, meta map[string]string) (*UploadedMeta, error) {
	md := map[string]string{"sha256": sumHex}
	for k, v := range meta {
		md[k] = v
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(u.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata:    md,
	}
	if u.SSE != nil {
		input.ServerSideEncryption = *u.SSE
	}

	out, err := u.Uploader.Upload(ctx, input)
	if err != nil {
		return nil, err
	}

	return &UploadedMeta{
		Bucket: u.Bucket,
		Key:    key,
		ETag:   aws.ToString(out.ETag),
		SHA256: sumHex,
		SizeB:  int64(len(body)),
	}, nil
}
