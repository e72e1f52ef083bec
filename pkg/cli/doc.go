/*
Package cli implements the claphost command line.

Commands:

	list        list the plugin libraries in the search paths
	metadata    show the plugins a library provides
	factories   check which factories a library provides
	create      instantiate a plugin and read back its descriptor
	index       scan the search paths and update the index (--watch to follow changes)
	find        find the indexed libraries that provide a plugin ID
	serve       run the index HTTP API
	version     print version information

Every command reads the configuration described in package config. Commands
that print data accept -o table|json|yaml.
*/
package cli
