package chatbot

// HeartbeatFrame returns a ServerHint carrying basic server information,
// intended to be sent to the client as a keep-alive. The CPU figure is a
// placeholder until real load reporting lands.
func HeartbeatFrame() Frame {
	return ServerHintFrame(`{"CPU":0}`)
}
