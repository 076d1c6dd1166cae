package trinity

import (
	"encoding/json"
	"fmt"
	"time"
)

// identityURISkillCap bounds the skills embedded in the on-chain identity URI.
const identityURISkillCap = 5

// IdentityURI is the compact identity document referenced by the minted
// token. It is stored on-chain as opaque bytes, so it stays small.
type IdentityURI struct {
	Version       int      `json:"version"`
	Platform      string   `json:"platform"`
	AgentId       string   `json:"agentId"`
	WalletAddress string   `json:"walletAddress"`
	Fid           int64    `json:"fid"`
	Skills        []string `json:"skills"`
	RegisteredAt  string   `json:"registeredAt"`
}

// BuildIdentityURI assembles the identity document for an agent, truncating
// the skill list to the cap.
func BuildIdentityURI(platform, agentId, walletAddress string, fid int64, skills []string, now time.Time) (string, error) {
	if len(skills) > identityURISkillCap {
		skills = skills[:identityURISkillCap]
	}
	if skills == nil {
		skills = []string{}
	}

	doc := IdentityURI{
		Version:       1,
		Platform:      platform,
		AgentId:       agentId,
		WalletAddress: walletAddress,
		Fid:           fid,
		Skills:        skills,
		RegisteredAt:  now.UTC().Format(time.RFC3339),
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode identity uri: %w", err)
	}
	return string(raw), nil
}
