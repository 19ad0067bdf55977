package api

// Timestamps are RFC 3339 strings in UTC; IDs are canonical UUID strings.

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	UserID string `json:"user_id"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
	UserID      string `json:"user_id"`
}

type Profile struct {
	UserID           string  `json:"user_id"`
	DisplayName      *string `json:"display_name,omitempty"`
	Email            *string `json:"email,omitempty"`
	Plan             string  `json:"plan_type"`
	CreditsRemaining int     `json:"credits_remaining"`
	TasksThisMonth   int     `json:"tasks_this_month"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
}

type Activity struct {
	ID            string  `json:"id"`
	ToolName      string  `json:"tool_name"`
	InputSnippet  *string `json:"input_snippet,omitempty"`
	OutputSnippet *string `json:"output_snippet,omitempty"`
	CreditsUsed   int     `json:"credits_used"`
	CreatedAt     string  `json:"created_at"`
}

type GetDashboardRequest struct{}

type Dashboard struct {
	Profile    *Profile   `json:"profile,omitempty"`
	Activities []Activity `json:"activities"`
	Loading    bool       `json:"loading"`
}

type CheckCreditsRequest struct {
	Cost int `json:"cost"`
}

type CheckCreditsResponse struct {
	Allowed bool `json:"allowed"`
	Balance int  `json:"balance"`
}

type DeductCreditsRequest struct {
	ToolName string `json:"tool_name"`
	Cost     int    `json:"cost"`
	Input    string `json:"input,omitempty"`
	Output   string `json:"output,omitempty"`
}

type Receipt struct {
	ToolName       string `json:"tool_name"`
	Cost           int    `json:"cost"`
	NewBalance     int    `json:"new_balance"`
	TasksThisMonth int    `json:"tasks_this_month"`
	MirrorFailed   bool   `json:"mirror_failed,omitempty"`
	ActivityFailed bool   `json:"activity_failed,omitempty"`
}

type DeductCreditsResponse struct {
	Receipt Receipt `json:"receipt"`
}

type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name,omitempty"`
	Plan        *string `json:"plan_type,omitempty"`
}

type UpdateProfileResponse struct {
	Profile Profile `json:"profile"`
}

type Tool struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Cost  int    `json:"cost"`
}

type ListToolsRequest struct{}

type ListToolsResponse struct {
	Tools []Tool `json:"tools"`
}

type WatchRequest struct{}

type Notice struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Change is one streamed update; the payload field matching Kind is set.
type Change struct {
	Kind     string    `json:"kind"`
	At       string    `json:"at"`
	Profile  *Profile  `json:"profile,omitempty"`
	Activity *Activity `json:"activity,omitempty"`
	Receipt  *Receipt  `json:"receipt,omitempty"`
	Notice   *Notice   `json:"notice,omitempty"`
}
