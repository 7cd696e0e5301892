package words

const (
	// WordGameDBURL is the public random word service used for the API category
	WordGameDBURL = "https://www.wordgamedb.com"

	// Paths
	randomWordPath = "/api/v1/words/random"
)
