package dispatch

// New builds a Registry with every handler group wired against d. Called
// once at server startup.
func New(d *Deps) *Registry {
	r := NewRegistry()
	registerAuthHandlers(r, d)
	registerUserHandlers(r, d)
	registerChatHandlers(r, d)
	registerMessageHandlers(r, d)
	registerSystemHandlers(r, d)
	return r
}
