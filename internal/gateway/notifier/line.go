package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"kawase/internal/logger"
)

// LineClient 是 LINE Messaging API 的推送客户端。
// 推送结果原样返回给调用方，不做重试。
type LineClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type LineConfig struct {
	BaseURL     string
	AccessToken string
	HTTPTimeout time.Duration
}

func NewLine(cfg LineConfig) (*LineClient, error) {
	if cfg.AccessToken == "" {
		return nil, errors.New("LINE channel access token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.line.me/v2/bot"
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	return &LineClient{
		baseURL:    cfg.BaseURL,
		token:      cfg.AccessToken,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
	}, nil
}

type pushMessage struct {
	Type               string `json:"type"`
	Text               string `json:"text,omitempty"`
	OriginalContentURL string `json:"originalContentUrl,omitempty"`
	PreviewImageURL    string `json:"previewImageUrl,omitempty"`
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []pushMessage `json:"messages"`
}

// PushText 向指定用户推送一条文本消息。
func (c *LineClient) PushText(ctx context.Context, to, text string) error {
	return c.push(ctx, pushRequest{
		To:       to,
		Messages: []pushMessage{{Type: "text", Text: text}},
	})
}

// PushTextWithImage 在文本之外附带一张图片（例如回测图表截图）。
// imageURL 必须是可公开访问的 HTTPS 地址。
func (c *LineClient) PushTextWithImage(ctx context.Context, to, text, imageURL string) error {
	return c.push(ctx, pushRequest{
		To: to,
		Messages: []pushMessage{
			{Type: "text", Text: text},
			{Type: "image", OriginalContentURL: imageURL, PreviewImageURL: imageURL},
		},
	})
}

func (c *LineClient) push(ctx context.Context, payload pushRequest) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/message/push", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		logger.Warnf("[line] push failed: %s %s", resp.Status, detail)
		return fmt.Errorf("LINE API error: %s %s", resp.Status, detail)
	}
	logger.Debugf("[line] push delivered to %s", payload.To)
	return nil
}
