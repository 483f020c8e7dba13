/*
Package updater keeps a single DNS "A" record pointed at the current public
IP address of the machine it runs on, with Openprovider as the DNS provider.

Usage will always start with [updater.New],
which returns the Client implementation.
New requires the domain and subdomain whose record will be kept in sync and a
provider option such as [updater.UsingOpenprovider].
Additional client configuration options are listed in the docs for New.
*/
package updater
