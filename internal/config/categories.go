package config

// CategoryWeights orders command categories in help output. Unknown
// categories sort last.
var CategoryWeights = map[string]int{
	"Information": 0,
	"Utilities":   10,
	"Fun":         20,
	"Moderation":  40,
	"Settings":    50,
	"System":      60,
}

// CategoryWeight returns the sort weight for a category.
func CategoryWeight(category string) int {
	if w, ok := CategoryWeights[category]; ok {
		return w
	}
	return 1000
}
