// Package fleet holds the data model shared by every provisioning phase:
// providers, roles, instances and the inventory projection built from the
// instances that currently exist.
package fleet
