package utils

import (
	"math/rand"
	"time"

	"github.com/go-resty/resty/v2"
)

// NewMarketplaceClient 创建统一配置的 Resty 客户端
// 所有渠道 API 调用都从这里出口：统一超时、UA 与有界退避重试
// 429/5xx/网络错误重试，4xx 业务错误不重试
func NewMarketplaceClient(baseURL string) *resty.Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(20 * time.Second).
		SetHeader("User-Agent", "Resale-Sync/1.0").
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(8 * time.Second)

	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return true // 网络层错误
		}
		if r.StatusCode() == 429 {
			return true
		}
		return r.StatusCode() >= 500
	})

	// 在指数退避基础上加抖动，避免多 worker 同步撞限流
	client.SetRetryAfter(func(c *resty.Client, r *resty.Response) (time.Duration, error) {
		base := c.RetryWaitTime << r.Request.Attempt
		if base > c.RetryMaxWaitTime {
			base = c.RetryMaxWaitTime
		}
		jitter := time.Duration(rand.Int63n(int64(base) / 2))
		return base/2 + jitter, nil
	})

	return client
}
