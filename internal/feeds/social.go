package feeds

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"tokenradar/internal/domain"
	"tokenradar/internal/indicators"
)

// SocialClient scrapes a self-hosted profile mirror for audience stats.
// The mirror serves plain HTML, so extraction is pattern based and every
// field degrades to zero when the markup shifts.
type SocialClient struct {
	c       *Client
	baseURL string
}

// NewSocialClient creates a social scraper client. baseURL points at the
// mirror instance.
func NewSocialClient(baseURL string, opts ...ClientOption) *SocialClient {
	return &SocialClient{
		c:       NewClient("social", opts...),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Enabled reports whether a mirror is configured.
func (s *SocialClient) Enabled() bool {
	return s != nil && s.baseURL != ""
}

var (
	statPattern     = regexp.MustCompile(`class="profile-stat-num"[^>]*>([^<]+)<`)
	bioPattern      = regexp.MustCompile(`class="profile-bio"[^>]*>(?:<p[^>]*>)?([^<]+)`)
	verifiedPattern = regexp.MustCompile(`class="[^"]*verified-icon`)
)

// Profile fetches and parses a profile page. The mirror lists the stat
// numbers in tweets, following, followers order.
func (s *SocialClient) Profile(ctx context.Context, handle string) (*domain.SocialData, error) {
	if !s.Enabled() {
		return nil, &Error{Kind: KindNotFound, Op: "social.profile", Err: fmt.Errorf("no mirror configured")}
	}

	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		return nil, &Error{Kind: KindMalformed, Op: "social.profile", Err: fmt.Errorf("empty handle")}
	}

	body, err := s.c.Get(ctx, "social.profile", s.baseURL+"/"+url.PathEscape(handle), "text/html")
	if err != nil {
		return nil, err
	}
	html := string(body)

	stats := statPattern.FindAllStringSubmatch(html, -1)
	if len(stats) < 3 {
		return nil, &Error{Kind: KindMalformed, Op: "social.profile",
			Err: fmt.Errorf("profile stats not found for %s", handle)}
	}

	sd := &domain.SocialData{
		Handle:    handle,
		Tweets:    parseStat(stats[0][1]),
		Following: parseStat(stats[1][1]),
		Followers: parseStat(stats[2][1]),
		Verified:  verifiedPattern.MatchString(html),
	}
	if m := bioPattern.FindStringSubmatch(html); m != nil {
		sd.Bio = strings.TrimSpace(m[1])
	}
	sd.SocialScore = indicators.SocialScore(sd.Followers, sd.Following, sd.Tweets, sd.Verified)

	return sd, nil
}

// parseStat handles "12,345", "12.3K", and "1.2M" formats.
func parseStat(s string) int {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0
	}

	mult := 1.0
	switch {
	case strings.HasSuffix(s, "K"), strings.HasSuffix(s, "k"):
		mult = 1000
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "M"), strings.HasSuffix(s, "m"):
		mult = 1000000
		s = s[:len(s)-1]
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(v * mult)
}

// HandleFromLinks extracts a profile handle from a token's social link map.
func HandleFromLinks(links map[string]string) (string, bool) {
	for _, key := range []string{"twitter", "x"} {
		raw, ok := links[key]
		if !ok || raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		handle := strings.Trim(u.Path, "/")
		if i := strings.IndexByte(handle, '/'); i >= 0 {
			handle = handle[:i]
		}
		if handle != "" {
			return handle, true
		}
	}
	return "", false
}
