// Package libconfig maintains the downloader's JSON library configuration.
//
// The file is an object with a "libraries" list plus free-form options copied
// from a template. Merge folds the cards reported by Libby into that list:
// existing entries keep their pin and card number, new libraries are appended
// with blank credentials for the operator to fill in, and entries that no
// longer match a card are reported but kept.
package libconfig
