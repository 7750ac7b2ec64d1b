package anthropic

// CachedSystemBlocks constructs system content blocks with a cache breakpoint
// at the given TTL ("5m" or "1h"). Agents that issue many requests sharing the
// same instructions put those instructions here and vary only the user turn.
func CachedSystemBlocks(text, ttl string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: ttl,
			},
		},
	}
}
