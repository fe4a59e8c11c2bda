// Package chatgateway talks to the chat platform: a REST client for
// membership, role, and message mutations, and a websocket consumer that
// turns gateway frames into engine events.
package chatgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/louisbranch/gatehouse/internal/onboarding/engine"
	"github.com/louisbranch/gatehouse/internal/platform/timeouts"
)

// Config holds the REST client parameters.
type Config struct {
	// BaseURL is the platform REST root, e.g. "https://discord.com/api/v10".
	BaseURL string
	GuildID string
	Tokens  TokenSource
	// HTTPClient defaults to a client bounded by the platform call timeout.
	HTTPClient *http.Client
}

// Client is the REST surface behind the engine's Directory, Notifier, and
// Redactor contracts. Safe for concurrent use.
type Client struct {
	baseURL string
	guildID string
	tokens  TokenSource
	http    *http.Client

	roleMu    sync.Mutex
	rolesByID map[string]string
}

// NewClient creates a platform REST client.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeouts.PlatformCall}
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		guildID:   cfg.GuildID,
		tokens:    cfg.Tokens,
		http:      httpClient,
		rolesByID: make(map[string]string),
	}
}

type roleDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EnsureRole resolves the named role, creating it when the guild has none
// with that name. Matching is case-insensitive, like the platform UI.
func (c *Client) EnsureRole(ctx context.Context, guildID, name string) (engine.RoleRef, error) {
	if guildID == "" {
		guildID = c.guildID
	}
	roles, err := c.listRoles(ctx, guildID)
	if err != nil {
		return engine.RoleRef{}, fmt.Errorf("list roles: %w", err)
	}
	for _, role := range roles {
		if strings.EqualFold(role.Name, name) {
			return engine.RoleRef{ID: role.ID, Name: role.Name}, nil
		}
	}

	var created roleDTO
	payload := map[string]any{"name": name}
	if err := c.do(ctx, http.MethodPost, "/guilds/"+guildID+"/roles", payload, &created); err != nil {
		return engine.RoleRef{}, fmt.Errorf("create role %q: %w", name, err)
	}
	c.cacheRole(created)
	return engine.RoleRef{ID: created.ID, Name: created.Name}, nil
}

// GrantRole adds the role to the member.
func (c *Client) GrantRole(ctx context.Context, subjectID string, role engine.RoleRef) error {
	path := "/guilds/" + c.guildID + "/members/" + subjectID + "/roles/" + role.ID
	if err := c.do(ctx, http.MethodPut, path, nil, nil); err != nil {
		return fmt.Errorf("grant role %q: %w", role.Name, err)
	}
	return nil
}

// SetNickname replaces the member's guild display name.
func (c *Client) SetNickname(ctx context.Context, subjectID, nickname string) error {
	path := "/guilds/" + c.guildID + "/members/" + subjectID
	payload := map[string]any{"nick": nickname}
	if err := c.do(ctx, http.MethodPatch, path, payload, nil); err != nil {
		return fmt.Errorf("set nickname: %w", err)
	}
	return nil
}

// SubjectHasRole reports whether the member currently holds the role.
func (c *Client) SubjectHasRole(ctx context.Context, subjectID string, role engine.RoleRef) (bool, error) {
	var member struct {
		Roles []string `json:"roles"`
	}
	path := "/guilds/" + c.guildID + "/members/" + subjectID
	if err := c.do(ctx, http.MethodGet, path, nil, &member); err != nil {
		return false, fmt.Errorf("get member: %w", err)
	}
	for _, id := range member.Roles {
		if id == role.ID {
			return true, nil
		}
	}
	return false, nil
}

// Send posts a message to the surface.
func (c *Client) Send(ctx context.Context, surfaceID, text string) (engine.MessageRef, error) {
	var created struct {
		ID string `json:"id"`
	}
	payload := map[string]any{"content": text}
	if err := c.do(ctx, http.MethodPost, "/channels/"+surfaceID+"/messages", payload, &created); err != nil {
		return engine.MessageRef{}, fmt.Errorf("send message: %w", err)
	}
	return engine.MessageRef{SurfaceID: surfaceID, MessageID: created.ID}, nil
}

// DeleteMessage removes a message from its surface.
func (c *Client) DeleteMessage(ctx context.Context, ref engine.MessageRef) error {
	path := "/channels/" + ref.SurfaceID + "/messages/" + ref.MessageID
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// CreateIsolatedSurface opens a private thread under the parent channel and
// adds the subject to it.
func (c *Client) CreateIsolatedSurface(ctx context.Context, parentSurfaceID, subjectID string) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	payload := map[string]any{
		"name":      "verification-" + subjectID,
		"type":      12,
		"invitable": false,
	}
	if err := c.do(ctx, http.MethodPost, "/channels/"+parentSurfaceID+"/threads", payload, &created); err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	path := "/channels/" + created.ID + "/thread-members/" + subjectID
	if err := c.do(ctx, http.MethodPut, path, nil, nil); err != nil {
		return "", fmt.Errorf("add thread member: %w", err)
	}
	return created.ID, nil
}

// ArchiveSurface archives and locks a thread.
func (c *Client) ArchiveSurface(ctx context.Context, surfaceID string) error {
	payload := map[string]any{"archived": true, "locked": true}
	if err := c.do(ctx, http.MethodPatch, "/channels/"+surfaceID, payload, nil); err != nil {
		return fmt.Errorf("archive thread: %w", err)
	}
	return nil
}

// Mention renders the platform mention syntax for the subject.
func (c *Client) Mention(subjectID string) string {
	return "<@" + subjectID + ">"
}

// DeleteOriginatingMessage redacts the member's raw input. Best effort:
// failures are logged, never surfaced, so a missing Manage Messages
// permission does not stall the dialogue.
func (c *Client) DeleteOriginatingMessage(ctx context.Context, ev engine.Event) {
	if ev.SurfaceID == "" || ev.MessageID == "" {
		return
	}
	ref := engine.MessageRef{SurfaceID: ev.SurfaceID, MessageID: ev.MessageID}
	if err := c.DeleteMessage(ctx, ref); err != nil {
		log.Printf("chatgateway: redact message surface=%q: %v", ev.SurfaceID, err)
	}
}

// RoleNames maps role ids to names using the cached guild role list,
// refreshing it once when an id is unknown. Unknown ids are skipped.
func (c *Client) RoleNames(ctx context.Context, ids []string) ([]string, error) {
	c.roleMu.Lock()
	missing := false
	for _, id := range ids {
		if _, ok := c.rolesByID[id]; !ok {
			missing = true
			break
		}
	}
	c.roleMu.Unlock()

	if missing {
		if _, err := c.listRoles(ctx, c.guildID); err != nil {
			return nil, fmt.Errorf("refresh roles: %w", err)
		}
	}

	c.roleMu.Lock()
	defer c.roleMu.Unlock()
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := c.rolesByID[id]; ok {
			names = append(names, name)
		}
	}
	return names, nil
}

func (c *Client) listRoles(ctx context.Context, guildID string) ([]roleDTO, error) {
	var roles []roleDTO
	if err := c.do(ctx, http.MethodGet, "/guilds/"+guildID+"/roles", nil, &roles); err != nil {
		return nil, err
	}
	for _, role := range roles {
		c.cacheRole(role)
	}
	return roles, nil
}

func (c *Client) cacheRole(role roleDTO) {
	c.roleMu.Lock()
	c.rolesByID[role.ID] = role.Name
	c.roleMu.Unlock()
}

// do performs one authenticated JSON call. Permission rejections wrap
// engine.ErrPermissionDenied so the state machine can distinguish them from
// transient trouble.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("resolve token: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+token)

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return fmt.Errorf("status %d: %w", res.StatusCode, engine.ErrPermissionDenied)
	case res.StatusCode < 200 || res.StatusCode >= 300:
		snippet, err := io.ReadAll(io.LimitReader(res.Body, 4096))
		if err != nil {
			return fmt.Errorf("read error body: %w", err)
		}
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
