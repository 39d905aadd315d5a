package database

var PruneDistros = pruneDistros
