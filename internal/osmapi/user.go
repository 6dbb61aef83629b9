package osmapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
)

// User is an OSM account as reported by the API.
type User struct {
	ID          int64
	DisplayName string
	Roles       []string
	Changesets  int
}

// IsModerator reports whether the account holds an elevated role.
func (u *User) IsModerator() bool {
	return slices.Contains(u.Roles, "moderator") || slices.Contains(u.Roles, "administrator")
}

type userPayload struct {
	User struct {
		ID          int64    `json:"id"`
		DisplayName string   `json:"display_name"`
		Roles       []string `json:"roles"`
		Changesets  struct {
			Count int `json:"count"`
		} `json:"changesets"`
	} `json:"user"`
}

func parseUser(body []byte) (*User, error) {
	var payload userPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parsing user: %w", err)
	}

	return &User{
		ID:          payload.User.ID,
		DisplayName: payload.User.DisplayName,
		Roles:       payload.User.Roles,
		Changesets:  payload.User.Changesets.Count,
	}, nil
}

// User fetches an account by id. Deleted accounts yield a nil user, not an
// error.
func (c *Client) User(ctx context.Context, uid int64) (*User, error) {
	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/user/%d.json", uid), "", nil)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return parseUser(body)
}

// AuthorizedUser fetches the account the client is authenticated as.
func (c *Client) AuthorizedUser(ctx context.Context) (*User, error) {
	body, err := c.do(ctx, http.MethodGet, "/user/details.json", "", nil)
	if err != nil {
		return nil, err
	}

	return parseUser(body)
}

type capabilitiesPayload struct {
	API struct {
		Changesets struct {
			MaximumElements int `json:"maximum_elements"`
		} `json:"changesets"`
	} `json:"api"`
}

// ChangesetMaxSize reports the server's per-changeset element cap.
func (c *Client) ChangesetMaxSize(ctx context.Context) (int, error) {
	body, err := c.do(ctx, http.MethodGet, "/capabilities.json", "", nil)
	if err != nil {
		return 0, err
	}

	var payload capabilitiesPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("parsing capabilities: %w", err)
	}

	return payload.API.Changesets.MaximumElements, nil
}
