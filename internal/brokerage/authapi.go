package brokerage

import (
	"context"
	"fmt"
	"net/url"
)

// LoginPayload is the exact body the token endpoint expects. The client id
// is the public one the first-party web client ships; changing any of these
// fields trips the device-binding checks upstream.
type LoginPayload struct {
	ClientID                     string `json:"client_id"`
	ExpiresIn                    int    `json:"expires_in"`
	GrantType                    string `json:"grant_type"`
	Password                     string `json:"password"`
	Scope                        string `json:"scope"`
	Username                     string `json:"username"`
	DeviceToken                  string `json:"device_token"`
	TryPasskeys                  bool   `json:"try_passkeys"`
	TokenRequestPath             string `json:"token_request_path"`
	CreateReadOnlySecondaryToken bool   `json:"create_read_only_secondary_token"`
}

const loginClientID = "c82SH0WZOsabOXGP2sxqcj34FxkvfnWRZBKlBjFS"

func NewLoginPayload(username, password, deviceToken string) LoginPayload {
	return LoginPayload{
		ClientID:                     loginClientID,
		ExpiresIn:                    86400,
		GrantType:                    "password",
		Password:                     password,
		Scope:                        "internal",
		Username:                     username,
		DeviceToken:                  deviceToken,
		TryPasskeys:                  false,
		TokenRequestPath:             "/login",
		CreateReadOnlySecondaryToken: true,
	}
}

// Login posts the credential payload. The response either carries tokens,
// a verification_workflow to walk, or error details.
func (c *Client) Login(ctx context.Context, payload LoginPayload) (map[string]any, error) {
	form := url.Values{
		"client_id":                        {payload.ClientID},
		"expires_in":                       {fmt.Sprintf("%d", payload.ExpiresIn)},
		"grant_type":                       {payload.GrantType},
		"password":                         {payload.Password},
		"scope":                            {payload.Scope},
		"username":                         {payload.Username},
		"device_token":                     {payload.DeviceToken},
		"try_passkeys":                     {"false"},
		"token_request_path":               {payload.TokenRequestPath},
		"create_read_only_secondary_token": {"true"},
	}
	return c.postForm(ctx, pathToken, form)
}

// UserMachine binds the device to the verification workflow and returns the
// machine id used for all subsequent inquiry calls.
func (c *Client) UserMachine(ctx context.Context, deviceToken, workflowID string) (string, error) {
	body, err := c.postJSON(ctx, pathUserMachine, map[string]any{
		"device_id": deviceToken,
		"flow":      "suv",
		"input":     map[string]any{"workflow_id": workflowID},
	})
	if err != nil {
		return "", err
	}
	return strField(body, "id"), nil
}

// Challenge describes the pending verification step for a workflow.
type Challenge struct {
	ID     string
	Type   string
	Status string
}

// InquiryChallenge fetches the user view of the inquiry and extracts the
// sheriff challenge, if any.
func (c *Client) InquiryChallenge(ctx context.Context, machineID string) (*Challenge, error) {
	var body map[string]any
	status, err := c.getJSON(ctx, fmt.Sprintf(pathInquiriesFmt, url.PathEscape(machineID)), nil, &body)
	if err != nil {
		return nil, err
	}
	if status != 200 {
		return nil, fmt.Errorf("inquiry view: status %d", status)
	}
	contextObj, _ := body["context"].(map[string]any)
	raw, _ := contextObj["sheriff_challenge"].(map[string]any)
	if raw == nil {
		return nil, nil
	}
	return &Challenge{
		ID:     strField(raw, "id"),
		Type:   strField(raw, "type"),
		Status: strField(raw, "status"),
	}, nil
}

// PromptStatus polls the push-approval state of a prompt challenge.
func (c *Client) PromptStatus(ctx context.Context, challengeID string) (string, error) {
	var body map[string]any
	status, err := c.getJSON(ctx, fmt.Sprintf(pathPromptStatusFmt, url.PathEscape(challengeID)), nil, &body)
	if err != nil {
		return "", err
	}
	if status != 200 {
		return "", fmt.Errorf("prompt status: status %d", status)
	}
	return strField(body, "challenge_status"), nil
}

// RespondChallenge submits an SMS/email code. The returned status is
// "validated" on success.
func (c *Client) RespondChallenge(ctx context.Context, challengeID, code string) (string, error) {
	body, err := c.postForm(ctx, fmt.Sprintf(pathChallengeFmt, url.PathEscape(challengeID)), url.Values{"response": {code}})
	if err != nil {
		return "", err
	}
	return strField(body, "status"), nil
}

// ContinueInquiry advances the workflow after a validated challenge.
func (c *Client) ContinueInquiry(ctx context.Context, machineID string) error {
	_, err := c.postJSON(ctx, fmt.Sprintf(pathInquiriesFmt, url.PathEscape(machineID)), map[string]any{
		"sequence":   0,
		"user_input": map[string]any{"status": "continue"},
	})
	return err
}
