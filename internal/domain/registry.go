package domain

// Asset is an operator-managed tracked symbol with its keyword list.
type Asset struct {
	Symbol      string   `yaml:"symbol" json:"symbol"`
	DisplayName string   `yaml:"display_name" json:"display_name"`
	Keywords    []string `yaml:"keywords" json:"keywords"`
	Active      bool     `yaml:"active" json:"active"`
	Priority    int      `yaml:"priority" json:"priority"`
}

// SourceEntryKind classifies a whitelist entry within a source.
type SourceEntryKind string

const (
	EntryAccount   SourceEntryKind = "account"
	EntryList      SourceEntryKind = "list"
	EntryQuery     SourceEntryKind = "query"
	EntrySubreddit SourceEntryKind = "subreddit"
	EntryChannel   SourceEntryKind = "channel"
	EntryGroup     SourceEntryKind = "group"
)

// SourceEntry is one whitelisted handle, subreddit or chat. A disabled
// entry is treated identically to an absent one.
type SourceEntry struct {
	ID          string          `yaml:"id" json:"id"`
	Kind        SourceEntryKind `yaml:"kind" json:"kind"`
	Handle      string          `yaml:"handle" json:"handle"`
	AssetSymbol string          `yaml:"asset_symbol" json:"asset_symbol"`
	Role        string          `yaml:"role" json:"role"`
	Enabled     bool            `yaml:"enabled" json:"enabled"`
	PerRunCap   int             `yaml:"per_run_cap" json:"per_run_cap"`
	Priority    int             `yaml:"priority" json:"priority"`
}
