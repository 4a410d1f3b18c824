package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"comment-responder/shared/config"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// Authenticate loads the OAuth client secrets, obtains a token (from the
// cache or through an interactive flow) and returns a ready client. Every
// failure wraps ErrAuthentication and is never retried.
func Authenticate(ctx context.Context, cfg *config.YouTubeConfig, opts Options) (*Client, error) {
	data, err := os.ReadFile(cfg.ClientSecretsFile)
	if err != nil {
		return nil, fmt.Errorf("%w: check your client secrets path %s: %w", ErrAuthentication, cfg.ClientSecretsFile, err)
	}

	oauthConfig, err := google.ConfigFromJSON(data, cfg.Scopes...)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid client secrets %s: %w", ErrAuthentication, cfg.ClientSecretsFile, err)
	}

	token, err := getToken(ctx, oauthConfig, cfg.TokenFile, cfg.AuthFlow)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	// Create token source that auto-refreshes and saves token
	tokenSource := &tokenSaver{
		config:    oauthConfig,
		token:     token,
		tokenFile: cfg.TokenFile,
	}

	httpClient := oauth2.NewClient(ctx, tokenSource)

	service, err := youtube.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create YouTube service: %w", ErrAuthentication, err)
	}

	return NewClient(service, opts), nil
}

// tokenSaver wraps an oauth2.TokenSource to automatically save refreshed tokens.
type tokenSaver struct {
	config    *oauth2.Config
	token     *oauth2.Token
	tokenFile string
	mu        sync.Mutex
}

// Token implements oauth2.TokenSource interface.
func (ts *tokenSaver) Token() (*oauth2.Token, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	tokenSource := ts.config.TokenSource(context.Background(), ts.token)

	newToken, err := tokenSource.Token()
	if err != nil {
		return nil, err
	}

	if newToken.AccessToken != ts.token.AccessToken {
		log.Println("Token refreshed, saving to file")
		ts.token = newToken
		if err := saveToken(ts.tokenFile, newToken); err != nil {
			log.Printf("Warning: Failed to save refreshed token: %v", err)
		}
	}

	return newToken, nil
}

// getToken prefers a cached token that can be refreshed and only falls back
// to an interactive flow when there is none.
func getToken(ctx context.Context, config *oauth2.Config, tokenFile, flow string) (*oauth2.Token, error) {
	tok, err := tokenFromFile(tokenFile)
	if err == nil {
		if tok.RefreshToken != "" {
			log.Printf("Loaded token from file (expires: %v)", tok.Expiry)
			return tok, nil
		}
		if tok.Valid() {
			return tok, nil
		}
	}

	log.Printf("Getting new token (%s flow)...", flow)
	switch flow {
	case "device":
		tok, err = getTokenWithDeviceFlow(ctx, config)
	default:
		tok, err = getTokenWithLocalServer(ctx, config)
	}
	if err != nil {
		return nil, err
	}

	if err := saveToken(tokenFile, tok); err != nil {
		log.Printf("Warning: Failed to save token: %v", err)
	}
	return tok, nil
}

// promptAuthURL shows the consent URL to the operator.
var promptAuthURL = func(authURL string) {
	fmt.Printf("\n%s\n", strings.Repeat("=", 80))
	fmt.Printf("YOUTUBE AUTHORIZATION REQUIRED\n")
	fmt.Printf("%s\n", strings.Repeat("=", 80))
	fmt.Printf("Open this URL in a browser on this machine and grant access:\n\n")
	fmt.Printf("   %s\n\n", authURL)
	fmt.Printf("Waiting for authorization to complete... (Ctrl+C to cancel)\n")
	fmt.Printf("%s\n", strings.Repeat("-", 80))
}

// getTokenWithLocalServer runs the installed-app flow: a loopback listener on
// an ephemeral port receives the authorization code.
func getTokenWithLocalServer(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("unable to start local authorization server: %w", err)
	}

	cfg := *config
	cfg.RedirectURL = fmt.Sprintf("http://%s/", listener.Addr().String())

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	server := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("code") == "" && q.Get("error") == "" {
				http.NotFound(w, r)
				return
			}
			if q.Get("state") != state {
				http.Error(w, "State mismatch", http.StatusBadRequest)
				return
			}
			if e := q.Get("error"); e != "" {
				http.Error(w, "Authorization denied", http.StatusForbidden)
				select {
				case errCh <- fmt.Errorf("authorization denied: %s", e):
				default:
				}
				return
			}
			fmt.Fprintln(w, "Authorization complete. You may close this window.")
			select {
			case codeCh <- q.Get("code"):
			default:
			}
		}),
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case errCh <- fmt.Errorf("local authorization server: %w", err):
			default:
			}
		}
	}()
	defer server.Close()

	promptAuthURL(cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier)))

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("unable to exchange authorization code: %w", err)
	}

	fmt.Printf("\nAuthorization successful!\n")
	return tok, nil
}

func getTokenWithDeviceFlow(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	resp, err := config.DeviceAuth(ctx, oauth2.AccessTypeOffline)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			log.Printf("Device authorization response failed (%s): %s", retrieveErr.Response.Status, strings.TrimSpace(string(retrieveErr.Body)))
		}
		return nil, fmt.Errorf("unable to start device authorization: %w. Ensure your OAuth client is created as 'TVs and Limited Input devices'", err)
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 80))
	fmt.Printf("YOUTUBE DEVICE AUTHORIZATION REQUIRED\n")
	fmt.Printf("%s\n", strings.Repeat("=", 80))
	fmt.Printf("1. Visit %s in your browser (any device works).\n", resp.VerificationURI)
	fmt.Printf("2. Enter this code when prompted: %s\n\n", resp.UserCode)
	fmt.Printf("Waiting for authorization to complete... (Ctrl+C to cancel)\n")
	fmt.Printf("%s\n", strings.Repeat("-", 80))

	tok, err := config.DeviceAccessToken(ctx, resp, oauth2.AccessTypeOffline)
	if err != nil {
		return nil, fmt.Errorf("device authorization did not complete: %w", err)
	}

	fmt.Printf("\nAuthorization successful!\n")
	return tok, nil
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

func saveToken(path string, token *oauth2.Token) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("unable to create token directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("failed to encode oauth token: %w", err)
	}
	log.Printf("Token saved to: %s", path)
	return nil
}
