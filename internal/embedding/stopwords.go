package embedding

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as",
		"is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down",
		"over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during",
		"before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don",
		"should", "now", "we", "you", "our", "your", "their", "they", "has", "have", "had", "who", "which", "what",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()
