package model

// GalaxyConnection is the per-user credential state for the external Galaxy
// instance: the long-lived API key plus the bearer token obtained from
// /register-key. Persisted in Redis, never in MySQL.
type GalaxyConnection struct {
	BaseURL           string `json:"base_url"`
	APIKey            string `json:"api_key"`
	Token             string `json:"token"`
	SelectedHistoryID string `json:"selected_history_id,omitempty"`
}

type GalaxyHistory struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type GalaxyDataset struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type GalaxyCollection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// GalaxyContents is replaced wholesale on every fetch; no incremental merge.
type GalaxyContents struct {
	Datasets    []GalaxyDataset    `json:"datasets"`
	Collections []GalaxyCollection `json:"collections"`
}
