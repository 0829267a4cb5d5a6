// Package dashboard holds the post-login page logic: the user's initials
// badge and the refresh and logout actions.
//
// Every action that fails lands the user back on the login route.
package dashboard
