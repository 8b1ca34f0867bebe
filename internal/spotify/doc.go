// package spotify is a thin gateway over the Spotify Web API and the
// accounts.spotify.com token endpoint.
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package spotify
