package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bvc-digitalhub/digitalhub-api/internal/database"
	"github.com/bvc-digitalhub/digitalhub-api/internal/observability"
)

const (
	ProfileBrowse     = "browse"
	ProfileEnrollment = "enrollment"
	ProfileLikeStorm  = "like-storm"
	ProfileMixed      = "mixed"
)

type Config struct {
	BaseURL     string
	Profile     string
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        int64
	// LikeAccounts sign in for the like-storm profile. Defaults to the seeded demo accounts.
	LikeAccounts []Credentials
}

type Credentials struct {
	Email    string
	Password string
}

type Result struct {
	TotalRequests int64
	Failures      int64
	Status2xx     int64
	Status4xx     int64
	Status429     int64
	Status5xx     int64
}

// requestFactory builds the next request for a tick.
type requestFactory func(ctx context.Context, n int) (*http.Request, error)

type runner struct {
	cfg     Config
	client  *http.Client
	rng     *rand.Rand
	tokens  []string
	project string
}

func Run(ctx context.Context, cfg Config) (Result, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 15
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if len(cfg.LikeAccounts) == 0 {
		cfg.LikeAccounts = demoCredentials()
	}

	r := &runner{
		cfg:    cfg,
		client: &http.Client{Timeout: 5 * time.Second},
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}
	factories, err := r.factoriesForProfile(ctx, cfg.Profile)
	if err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var total, failures, s2xx, s4xx, s429, s5xx atomic.Int64
	jobs := make(chan *http.Request, cfg.Concurrency*2)
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < cfg.Concurrency; i++ {
		g.Go(func() error {
			for req := range jobs {
				resp, err := r.client.Do(req)
				if err != nil {
					failures.Add(1)
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				_ = resp.Body.Close()
				total.Add(1)
				class := statusClass(resp.StatusCode)
				switch {
				case resp.StatusCode == http.StatusTooManyRequests:
					s429.Add(1)
					s4xx.Add(1)
				case class == "2xx":
					s2xx.Add(1)
				case class == "4xx":
					s4xx.Add(1)
				case class == "5xx":
					s5xx.Add(1)
				}
				observability.RecordLoadgenRequest(context.Background(), class, cfg.Profile)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(jobs)
		ticker := time.NewTicker(time.Second / time.Duration(cfg.RPS))
		defer ticker.Stop()
		for n := 0; ; n++ {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				req, err := factories[n%len(factories)](gctx, n)
				if err != nil {
					failures.Add(1)
					continue
				}
				select {
				case jobs <- req:
				case <-gctx.Done():
					return nil
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	return Result{
		TotalRequests: total.Load(),
		Failures:      failures.Load(),
		Status2xx:     s2xx.Load(),
		Status4xx:     s4xx.Load(),
		Status429:     s429.Load(),
		Status5xx:     s5xx.Load(),
	}, nil
}

func (r *runner) factoriesForProfile(ctx context.Context, profile string) ([]requestFactory, error) {
	browse := []requestFactory{
		r.get("/api/v1/projects"),
		r.get("/api/v1/projects?page=2&page_size=5"),
		r.get("/health/live"),
	}
	enrollment := []requestFactory{
		r.sendOTP,
		r.wrongOTP,
	}
	switch strings.ToLower(profile) {
	case ProfileBrowse:
		return browse, nil
	case ProfileEnrollment:
		return enrollment, nil
	case "", ProfileMixed:
		return append(browse, enrollment...), nil
	case ProfileLikeStorm:
		if err := r.prepareLikeStorm(ctx); err != nil {
			return nil, err
		}
		return []requestFactory{r.toggleLike}, nil
	default:
		return nil, fmt.Errorf("unknown profile: %s", profile)
	}
}

func (r *runner) get(path string) requestFactory {
	return func(ctx context.Context, _ int) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.BaseURL+path, nil)
	}
}

func (r *runner) sendOTP(ctx context.Context, n int) (*http.Request, error) {
	email := fmt.Sprintf("loadgen+%d-%d@example.com", r.cfg.Seed, n)
	return r.postJSON(ctx, "/api/v1/auth/send-otp", "", map[string]string{"email": email})
}

func (r *runner) wrongOTP(ctx context.Context, n int) (*http.Request, error) {
	email := fmt.Sprintf("loadgen+%d-%d@example.com", r.cfg.Seed, n-1)
	return r.postJSON(ctx, "/api/v1/auth/verify-otp", "", map[string]string{"email": email, "otp": "000000"})
}

func (r *runner) toggleLike(ctx context.Context, n int) (*http.Request, error) {
	token := r.tokens[n%len(r.tokens)]
	return r.postJSON(ctx, "/api/v1/projects/"+r.project+"/like", token, nil)
}

// prepareLikeStorm signs in every like account and picks a project none of
// them owns, so every toggle is a legal like or unlike.
func (r *runner) prepareLikeStorm(ctx context.Context) error {
	owners := make(map[string]struct{}, len(r.cfg.LikeAccounts))
	for _, c := range r.cfg.LikeAccounts {
		token, accountID, err := r.login(ctx, c)
		if err != nil {
			return fmt.Errorf("login %s: %w", c.Email, err)
		}
		r.tokens = append(r.tokens, token)
		owners[accountID] = struct{}{}
	}
	project, err := r.pickProject(ctx, owners)
	if err != nil {
		return err
	}
	r.project = project
	return nil
}

func (r *runner) login(ctx context.Context, c Credentials) (string, string, error) {
	req, err := r.postJSON(ctx, "/api/v1/auth/login", "", map[string]string{"email": c.Email, "password": c.Password})
	if err != nil {
		return "", "", err
	}
	var data struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := r.doEnvelope(req, &data); err != nil {
		return "", "", err
	}
	return data.Token, data.User.ID, nil
}

func (r *runner) pickProject(ctx context.Context, excludedOwners map[string]struct{}) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.BaseURL+"/api/v1/projects?page_size=100", nil)
	if err != nil {
		return "", err
	}
	var page struct {
		Items []struct {
			ID      string `json:"id"`
			OwnerID string `json:"owner_id"`
		} `json:"items"`
	}
	if err := r.doEnvelope(req, &page); err != nil {
		return "", err
	}
	candidates := make([]string, 0, len(page.Items))
	for _, p := range page.Items {
		if _, owned := excludedOwners[p.OwnerID]; !owned {
			candidates = append(candidates, p.ID)
		}
	}
	if len(candidates) == 0 {
		return "", errors.New("no project owned by someone outside the like accounts, seed more data")
	}
	return candidates[r.rng.Intn(len(candidates))], nil
}

func (r *runner) postJSON(ctx context.Context, path, token string, body any) (*http.Request, error) {
	var rdr io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (r *runner) doEnvelope(req *http.Request, dst any) error {
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	if !env.Success {
		if env.Error != nil {
			return fmt.Errorf("%s: %s (%s)", req.URL.Path, env.Error.Message, env.Error.Code)
		}
		return fmt.Errorf("%s: status %d", req.URL.Path, resp.StatusCode)
	}
	return json.Unmarshal(env.Data, dst)
}

func demoCredentials() []Credentials {
	emails := database.DemoAccountEmails()
	out := make([]Credentials, 0, len(emails))
	for _, e := range emails {
		out = append(out, Credentials{Email: e, Password: database.DemoPassword})
	}
	return out
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "other"
	}
}
