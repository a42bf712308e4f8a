package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/boardwatch/boardwatch/internal/scraper"
	"github.com/boardwatch/boardwatch/internal/secrets"
	"github.com/boardwatch/boardwatch/pkg/config"
	"github.com/boardwatch/boardwatch/pkg/errors"
	"github.com/boardwatch/boardwatch/pkg/logging"
)

// MessageMaxLength is the Telegram sendMessage text limit
const MessageMaxLength = 4096

// Sender delivers formatted article digests to Telegram chats
type Sender struct {
	apiBaseURL string
	tokens     secrets.Provider
	httpClient *http.Client
	pacing     time.Duration
	logger     *logging.Logger
}

// NewSender creates a Telegram sender
func NewSender(cfg *config.TelegramConfig, tokens secrets.Provider, logger *logging.Logger) (*Sender, error) {
	if cfg == nil {
		return nil, errors.NewValidationError("telegram configuration is required")
	}
	if tokens == nil {
		return nil, errors.NewValidationError("a token provider is required")
	}
	if logger == nil {
		logger = logging.GetLogger()
	}

	return &Sender{
		apiBaseURL: strings.TrimSuffix(cfg.APIBaseURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		pacing: cfg.MessagePacing,
		logger: logger,
	}, nil
}

// SendArticles formats the articles into messages and delivers them to
// the chat, pacing between messages to stay under Telegram rate limits
func (s *Sender) SendArticles(ctx context.Context, chatID, board string, articles []scraper.Article) error {
	messages := FormatMessages(board, articles)
	return s.SendMessages(ctx, chatID, messages)
}

// SendMessages delivers a batch of pre-formatted messages in order
func (s *Sender) SendMessages(ctx context.Context, chatID string, messages []string) error {
	if chatID == "" {
		return errors.NewValidationError("chat ID is required")
	}

	token, err := s.tokens.GetSecret(ctx, secrets.TelegramTokenName)
	if err != nil {
		return err
	}

	for i, message := range messages {
		if err := s.sendMessage(ctx, token, chatID, message); err != nil {
			s.logger.LogDeliveryEvent(ctx, "message_failed", chatID, false, logrus.Fields{
				"message_index": i,
				"message_total": len(messages),
			})
			return err
		}

		if i < len(messages)-1 && s.pacing > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.pacing):
			}
		}
	}

	s.logger.LogDeliveryEvent(ctx, "messages_sent", chatID, true, logrus.Fields{
		"message_count": len(messages),
	})
	return nil
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
	ErrorCode   int    `json:"error_code,omitempty"`
}

func (s *Sender) sendMessage(ctx context.Context, token, chatID, text string) error {
	payload, err := json.Marshal(sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             "Markdown",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return errors.NewInternalError("failed to encode telegram payload").WithCause(err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBaseURL, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.NewInternalError("failed to build telegram request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.NewTimeoutError("telegram send").WithCause(err)
	}
	defer resp.Body.Close()

	var body sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil && resp.StatusCode == http.StatusOK {
		return errors.NewDeliveryError(chatID, "failed to decode telegram response").WithCause(err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.NewRateLimitError("telegram rate limit exceeded")
	case resp.StatusCode >= 500:
		return errors.NewDeliveryError(chatID, fmt.Sprintf("telegram returned status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		// Bad chat IDs and malformed markup never succeed on retry
		return errors.NewValidationError(fmt.Sprintf("telegram rejected message: %s", body.Description))
	case !body.OK:
		return errors.NewDeliveryError(chatID, fmt.Sprintf("telegram API error: %s", body.Description))
	}

	return nil
}

// FormatMessages renders articles into Telegram messages, splitting at
// the length limit with a continuation header on follow-up messages
func FormatMessages(board string, articles []scraper.Article) []string {
	if len(articles) == 0 {
		return []string{fmt.Sprintf("📋 **%s** 看板目前沒有符合條件的文章", board)}
	}

	var messages []string
	current := fmt.Sprintf("📋 **%s** 看板最新文章 (%d 篇)\n\n", board, len(articles))

	for i, article := range articles {
		block := fmt.Sprintf("%d. **%s**\n   👤 %s | 📅 %s\n   🔗 %s\n\n",
			i+1, article.Title, article.Author, article.Date, article.Link)

		if len(current)+len(block) > MessageMaxLength {
			if trimmed := strings.TrimSpace(current); trimmed != "" {
				messages = append(messages, trimmed)
			}
			current = fmt.Sprintf("📋 **%s** 看板最新文章 (續)\n\n", board) + block
		} else {
			current += block
		}
	}

	if trimmed := strings.TrimSpace(current); trimmed != "" {
		messages = append(messages, trimmed)
	}

	return messages
}
