// Package catalog serves the product reads behind the authorization gate.
//
// The catalog is a static list of books loaded once at startup. What an
// authorized principal sees is narrowed by the policies that allowed the
// request. The publishers view limits a publisher to their own books plus
// any book a single-book policy grants them. Premium offers are only listed
// when a premium policy applied or the principal is an administrator.
package catalog
