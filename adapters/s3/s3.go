package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/samber/lo"
)

// 單次 DeleteObjects 最多可刪除的物件數
const maxDeleteBatch = 1000

// KeyPrefix 是刊登圖片在存儲桶中的共同前綴
const KeyPrefix = "cars/"

// ClientConfig 是連線到 S3 相容服務的設定
type ClientConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	// Region 未設定時使用 "auto"
	Region string
}

// NewClient 建立 path-style 的 S3 客戶端；每個請求只送出一次，不做重試
func NewClient(ctx context.Context, config ClientConfig) (*s3.Client, error) {
	const op = "NewClient"
	region := config.Region
	if region == "" {
		region = "auto"
	}
	cfg, err := awsConfig.LoadDefaultConfig(
		ctx,
		awsConfig.WithBaseEndpoint(config.Endpoint),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, "")),
		awsConfig.WithRegion(region),
		awsConfig.WithRetryMaxAttempts(1),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to load AWS config, err=%w", op, err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
		o.Retryer = aws.NopRetryer{}
	}), nil
}

type S3Operator struct {
	// client 是 S3 客戶端。
	Client *s3.Client
	// Bucket 是 S3 存儲桶的名稱。
	Bucket string
	// PublicEndpoint 是 S3 存儲桶的公開 Endpoint。
	PublicEndpoint *url.URL

	hostedPattern *regexp.Regexp
	pathPattern   *regexp.Regexp
}

func NewS3Operator(client *s3.Client, bucket, publicBaseURL string) (*S3Operator, error) {
	const op = "NewS3Operator"
	if bucket == "" {
		return nil, fmt.Errorf("[%s] bucket cannot be empty", op)
	}
	publicEndpoint, err := url.Parse(strings.TrimRight(publicBaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to parse public base URL, err=%w", op, err)
	}
	quoted := regexp.QuoteMeta(bucket)
	return &S3Operator{
		Client:         client,
		Bucket:         bucket,
		PublicEndpoint: publicEndpoint,
		hostedPattern:  regexp.MustCompile(`/storage/v1/object/public/` + quoted + `/(.+)$`),
		pathPattern:    regexp.MustCompile(`^/` + quoted + `/(.+)$`),
	}, nil
}

func (s *S3Operator) Upload(ctx context.Context, key, contentType string, data []byte) error {
	const op = "Upload"
	_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("[%s] Fail to upload file to S3, err=%w", op, err)
	}
	return nil
}

func (s *S3Operator) PublicURL(_ context.Context, key string) (string, error) {
	const op = "PublicURL"
	if key == "" {
		return "", fmt.Errorf("[%s] key cannot be empty", op)
	}
	uri, err := url.JoinPath(s.PublicEndpoint.String(), key)
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to join public URL, err=%w", op, err)
	}
	return uri, nil
}

// ExtractKey 依序辨識三種網址格式：
// 舊版託管儲存的 /storage/v1/object/public/{bucket}/{key}、
// path-style 的 /{bucket}/{key}、以及目前的 {publicBaseURL}/cars/...
func (s *S3Operator) ExtractKey(rawURL string) (string, bool) {
	uri, err := url.Parse(rawURL)
	if err != nil || uri.Path == "" {
		return "", false
	}
	if m := s.hostedPattern.FindStringSubmatch(uri.Path); m != nil {
		return m[1], true
	}
	if m := s.pathPattern.FindStringSubmatch(uri.Path); m != nil {
		return m[1], true
	}
	base := s.PublicEndpoint.String() + "/"
	if key, found := strings.CutPrefix(rawURL, base); found && strings.HasPrefix(key, KeyPrefix) {
		if unescaped, err := url.PathUnescape(key); err == nil {
			return unescaped, true
		}
	}
	return "", false
}

// Remove 以批次方式刪除物件，任一物件刪除失敗都會回傳錯誤
func (s *S3Operator) Remove(ctx context.Context, keys []string) error {
	const op = "Remove"
	var errs []error
	for _, chunk := range lo.Chunk(keys, maxDeleteBatch) {
		objects := lo.Map(chunk, func(key string, _ int) types.ObjectIdentifier {
			return types.ObjectIdentifier{Key: aws.String(key)}
		})
		output, err := s.Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.Bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, e := range output.Errors {
			errs = append(errs, fmt.Errorf("key=%s, code=%s, message=%s", aws.ToString(e.Key), aws.ToString(e.Code), aws.ToString(e.Message)))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("[%s] Fail to delete objects from S3, err=%w", op, errors.Join(errs...))
	}
	return nil
}
