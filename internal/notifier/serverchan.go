package notifier

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// maxTitleRunes is ServerChan's title length limit.
const maxTitleRunes = 32

// ServerChan pushes notifications through the ServerChan (Server酱) API.
// A nil or unconfigured ServerChan is safe to use: Send reports skipped.
type ServerChan struct {
	uid     string
	sendKey string
	maxPer  int
	client  *http.Client

	mu   sync.Mutex
	sent []time.Time
	now  func() time.Time
}

// NewServerChan creates a ServerChan notifier. uid and sendKey may be
// empty, in which case every Send is skipped.
func NewServerChan(uid, sendKey string, maxPerMinute int) *ServerChan {
	if maxPerMinute <= 0 {
		maxPerMinute = 5
	}
	return &ServerChan{
		uid:     uid,
		sendKey: sendKey,
		maxPer:  maxPerMinute,
		client:  &http.Client{Timeout: 10 * time.Second},
		now:     time.Now,
	}
}

// Configured reports whether credentials are present.
func (s *ServerChan) Configured() bool {
	return s != nil && s.uid != "" && s.sendKey != ""
}

// Send pushes one notification. It returns (false, nil) when the send
// was skipped: missing credentials or the per-minute rate limit.
func (s *ServerChan) Send(title, content string) (bool, error) {
	if !s.Configured() {
		log.Println("[WARN] notifier: ServerChan not configured, skipping notification")
		return false, nil
	}
	if !s.allow() {
		log.Printf("[WARN] notifier: rate limit reached (%d/min), dropping %q", s.maxPer, title)
		return false, nil
	}

	if runes := []rune(title); len(runes) > maxTitleRunes {
		title = string(runes[:maxTitleRunes])
	}

	endpoint := fmt.Sprintf("https://%s.push.ft07.com/send/%s.send", s.uid, s.sendKey)
	form := url.Values{}
	form.Set("title", title)
	form.Set("desp", content)

	resp, err := s.client.Post(endpoint, "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("post to ServerChan: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("ServerChan returned HTTP %d: %s", resp.StatusCode, body)
	}
	if code := gjson.GetBytes(body, "code"); code.Exists() && code.Int() != 0 {
		return false, fmt.Errorf("ServerChan error code %d: %s", code.Int(), gjson.GetBytes(body, "message"))
	}

	log.Printf("[INFO] notifier: sent %q", title)
	return true, nil
}

// allow records one send attempt against the sliding one-minute window.
func (s *ServerChan) allow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-time.Minute)
	kept := s.sent[:0]
	for _, t := range s.sent {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.sent = kept

	if len(s.sent) >= s.maxPer {
		return false
	}
	s.sent = append(s.sent, now)
	return true
}
