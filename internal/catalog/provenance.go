package catalog

import (
	"strings"

	"modelmgr/pkg/types"
)

// Curated author lists for provenance classification. The buckets are
// checked in order and the first match wins: an author appearing in more
// than one list keeps the strongest tier.

// Community quantizers with a long, clean track record.
var trustedQuantizers = []string{
	"bartowski",
	"TheBloke",
	"mradermacher",
	"QuantFactory",
	"second-state",
}

// Organizations that created the original model weights.
var officialCreators = map[string]string{
	"meta-llama": "Meta",
	"mistralai":  "Mistral AI",
	"google":     "Google",
	"Qwen":       "Qwen",
	"microsoft":  "Microsoft",
	"openai":     "OpenAI",
	"argmaxinc":  "Argmax",
	"stabilityai": "Stability AI",
}

// Quantizers verified to repackage official weights faithfully.
var verifiedQuantizers = map[string]string{
	"unsloth":            "Unsloth",
	"lmstudio-community": "LM Studio",
	"ggml-org":           "ggml",
	"hugging-quants":     "Hugging Quants",
}

// classifyAuthor maps a repository author to a trust tier.
func classifyAuthor(author string) types.Provenance {
	for _, a := range trustedQuantizers {
		if strings.EqualFold(a, author) {
			return types.ProvenanceTrustedCommunity
		}
	}
	for a := range officialCreators {
		if strings.EqualFold(a, author) {
			return types.ProvenanceOfficial
		}
	}
	for a := range verifiedQuantizers {
		if strings.EqualFold(a, author) {
			return types.ProvenanceVerified
		}
	}
	return types.ProvenanceCommunity
}
