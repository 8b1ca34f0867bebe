// Package server provides HTTP routing, middleware, and the DeWorm web
// surface.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # Handlers
//
// [AuthHandler] owns the authorization code flow: /login issues the state
// nonce and redirects to the consent screen, /callback validates the nonce
// and exchanges the code, /logout clears the session. Each failure mode
// redirects to /auth/error with its own error kind.
//
// [APIHandler] proxies the page's catalog and player calls under
// /api/spotify/, attaching the session's token server-side. A rejected token
// triggers at most one silent refresh before the client is asked to log in
// again.
//
// [PageHandler] renders the landing, search and error pages from embedded
// templates and serves the static assets.
//
// [LoopbackHandler] is the CLI variant of the callback: a temporary
// localhost server receives the redirect, performs the exchange, and hands
// the result back over a channel. It only processes one callback to prevent
// replay attacks.
//
// # Sessions
//
// Handlers obtain their session store per request through a [StoreFactory].
// The web surface binds [session.CookieStore]; the CLI binds the SQLite
// store from internal/repositories.
package server
