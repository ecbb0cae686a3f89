package rate

// Keys are scoped to one session so a reopened anchor starts with fresh budgets.
func evidenceKey(prefix, anchorID, sessionID, participantID string) string {
	return prefix + "pe:" + anchorID + ":" + sessionID + ":" + participantID
}

func proofKey(prefix, anchorID, sessionID, participantID string) string {
	return prefix + "pp:" + anchorID + ":" + sessionID + ":" + participantID
}
