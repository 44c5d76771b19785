package infrastructure

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"

	"supportbridge/internal/entities"
)

const streamService = "stream"

// StreamClient is a server-side client for the Stream Chat REST API. It holds
// the API secret, which signs both server requests and user tokens.
type StreamClient struct {
	http     *http.Client
	baseURL  string
	apiKey   string
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
}

func NewStreamClient(httpClient *http.Client, baseURL, apiKey, apiSecret string, tokenTTL time.Duration) *StreamClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://chat.stream-io-api.com"
	}
	return &StreamClient{
		http:     defaultHTTPClient(httpClient),
		baseURL:  baseURL,
		apiKey:   apiKey,
		secret:   []byte(apiSecret),
		tokenTTL: tokenTTL,
		now:      time.Now,
	}
}

func (c *StreamClient) APIKey() string { return c.apiKey }

func (c *StreamClient) endpoint(path string) string {
	return c.baseURL + path + "?" + url.Values{"api_key": {c.apiKey}}.Encode()
}

func (c *StreamClient) headers() (http.Header, error) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"server": true}).SignedString(c.secret)
	if err != nil {
		return nil, fmt.Errorf("sign server token: %w", err)
	}
	h := http.Header{}
	h.Set("Authorization", token)
	h.Set("Stream-Auth-Type", "jwt")
	return h, nil
}

// CreateToken signs a client token that authenticates as userID only.
func (c *StreamClient) CreateToken(userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id is required")
	}
	claims := jwt.MapClaims{"user_id": userID}
	if c.tokenTTL > 0 {
		now := c.now()
		claims["iat"] = now.Unix()
		claims["exp"] = now.Add(c.tokenTTL).Unix()
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign user token: %w", err)
	}
	return token, nil
}

// UpsertUsers creates or updates all users in one request.
func (c *StreamClient) UpsertUsers(ctx context.Context, users ...entities.ChatUser) error {
	const op = "upsert users"
	if len(users) == 0 {
		return nil
	}
	byID := make(map[string]entities.ChatUser, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	headers, err := c.headers()
	if err != nil {
		return err
	}
	status, body, err := doJSON(ctx, c.http, http.MethodPost, c.endpoint("/users"), headers, map[string]any{"users": byID})
	if err != nil {
		return transportError(streamService, op, err)
	}
	if !isSuccess(status) {
		return upstreamError(streamService, op, status, body)
	}
	return nil
}

// GetOrCreateChannel queries the channel with creation data, which creates it
// on first use and returns the existing one afterwards.
func (c *StreamClient) GetOrCreateChannel(ctx context.Context, channelType, channelID string, members []string, createdByID string) (entities.Channel, error) {
	const op = "get or create channel"
	path := "/channels/" + url.PathEscape(channelType) + "/" + url.PathEscape(channelID) + "/query"
	payload := map[string]any{
		"data": map[string]any{
			"members":       members,
			"created_by_id": createdByID,
		},
	}

	headers, err := c.headers()
	if err != nil {
		return entities.Channel{}, err
	}
	status, body, err := doJSON(ctx, c.http, http.MethodPost, c.endpoint(path), headers, payload)
	if err != nil {
		return entities.Channel{}, transportError(streamService, op, err)
	}
	if !isSuccess(status) {
		return entities.Channel{}, upstreamError(streamService, op, status, body)
	}

	ch := entities.Channel{
		ID:   gjson.GetBytes(body, "channel.id").String(),
		Type: gjson.GetBytes(body, "channel.type").String(),
	}
	for _, m := range gjson.GetBytes(body, "members.#.user_id").Array() {
		ch.Members = append(ch.Members, m.String())
	}
	if ch.Type == "" {
		ch.Type = channelType
	}
	if len(ch.Members) == 0 {
		ch.Members = append([]string(nil), members...)
	}
	return ch, nil
}

// VerifyWebhook checks the hex HMAC-SHA256 of body against the X-Signature value.
func (c *StreamClient) VerifyWebhook(body []byte, signature string) bool {
	want, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(want) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}
