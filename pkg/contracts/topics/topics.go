package topics

const (
	// Kafka: eventos de aposta liquidada (fonte canônica do feed)
	BetSettled = "bet_settled"

	// Redis Pub/Sub: barramento entre instâncias do feed
	FeedDeltas       = "bet-feed:deltas"
	FeedLegacyDeltas = "bet-feed:legacy-deltas"
	FeedUserPrefix   = "bet-feed:user:"
	FeedUserPattern  = FeedUserPrefix + "*"

	// Redis Pub/Sub: invalidação de cache quando um usuário muda a privacidade
	UserPrivacyChanged = "user:privacy:changed"
)

// UserChannel retorna o canal pessoal de um usuário.
func UserChannel(userID string) string { return FeedUserPrefix + userID }
