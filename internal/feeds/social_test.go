package feeds

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tokenradar/internal/domain"
)

func TestParseStat(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"12,345", 12345},
		{"12.3K", 12300},
		{"1.2M", 1200000},
		{"500", 500},
		{"0", 0},
		{"", 0},
		{"garbage", 0},
	}
	for _, tt := range tests {
		if got := parseStat(tt.in); got != tt.want {
			t.Errorf("parseStat(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestHandleFromLinks(t *testing.T) {
	tests := []struct {
		links map[string]string
		want  string
		ok    bool
	}{
		{map[string]string{"twitter": "https://twitter.com/project"}, "project", true},
		{map[string]string{"x": "https://x.com/project/status/1"}, "project", true},
		{map[string]string{"website": "https://example.com"}, "", false},
		{nil, "", false},
	}
	for _, tt := range tests {
		got, ok := HandleFromLinks(tt.links)
		if got != tt.want || ok != tt.ok {
			t.Errorf("HandleFromLinks(%v) = (%q, %v), want (%q, %v)", tt.links, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSocialProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
		  <div class="profile-card">
		    <span class="icon-ok verified-icon" title="Verified account"></span>
		    <div class="profile-bio"><p>Building the future of tokens.</p></div>
		    <ul class="profile-statlist">
		      <li><span class="profile-stat-num">1,250</span> Tweets</li>
		      <li><span class="profile-stat-num">300</span> Following</li>
		      <li><span class="profile-stat-num">52.1K</span> Followers</li>
		      <li><span class="profile-stat-num">9</span> Likes</li>
		    </ul>
		  </div>
		</body></html>`)
	}))
	defer srv.Close()

	s := NewSocialClient(srv.URL, WithRetryBase(time.Millisecond), WithRateLimit(1000, 1000))

	sd, err := s.Profile(context.Background(), "@project")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}

	if sd.Handle != "project" {
		t.Errorf("Handle = %q, want project", sd.Handle)
	}
	if sd.Tweets != 1250 || sd.Following != 300 || sd.Followers != 52100 {
		t.Errorf("stats = %d/%d/%d, want 1250/300/52100", sd.Tweets, sd.Following, sd.Followers)
	}
	if !sd.Verified {
		t.Error("Verified = false, want true")
	}
	if sd.Bio != "Building the future of tokens." {
		t.Errorf("Bio = %q", sd.Bio)
	}
	// 52.1K followers (35) + ratio 173 (20) + 1250 tweets (20) + verified (20)
	if sd.SocialScore != 95 {
		t.Errorf("SocialScore = %v, want 95", sd.SocialScore)
	}
}

func TestSocialProfileMalformedPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>nothing here</body></html>`)
	}))
	defer srv.Close()

	s := NewSocialClient(srv.URL, WithRetryBase(time.Millisecond), WithRateLimit(1000, 1000))
	_, err := s.Profile(context.Background(), "ghost")
	if err == nil || KindOf(err) != KindMalformed {
		t.Errorf("err = %v, want KindMalformed", err)
	}
}

func TestSocialDisabled(t *testing.T) {
	var s *SocialClient
	if s.Enabled() {
		t.Error("nil client Enabled() = true")
	}
	s = NewSocialClient("")
	if s.Enabled() {
		t.Error("empty baseURL Enabled() = true")
	}
}

func TestValidAddress(t *testing.T) {
	tests := []struct {
		chain   domain.Chain
		address string
		want    bool
	}{
		{domain.ChainEthereum, "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEbb", true},
		{domain.ChainEthereum, "0x742d35", false},
		{domain.ChainEthereum, "742d35Cc6634C0532925a3b844Bc9e7595f0bEbb", false},
		{domain.ChainBSC, "0x1b81D678ffb9C0263b24A97847620C99d213eB14", true},
		{domain.ChainSolana, "So11111111111111111111111111111111111111112", true},
		{domain.ChainSolana, "notbase58!!!", false},
		{domain.ChainSolana, "abc", false},
	}
	for _, tt := range tests {
		if got := ValidAddress(tt.chain, tt.address); got != tt.want {
			t.Errorf("ValidAddress(%s, %q) = %v, want %v", tt.chain, tt.address, got, tt.want)
		}
	}
}
