// Package navigation builds the site header menu.
//
// The static entries come from a YAML file. An entry marked categories: true
// gets its submenu from the CMS category tree, so new shop categories show up
// without a deploy. The assembled menu is held by a Manager and refreshed by a
// Watcher on a poll interval and whenever the YAML file changes.
package navigation
