package main

// General API documentation for swaggo. Run `swag init -g cmd/relayd/docs.go` to
// generate docs, then build with -tags swagger.
//
// @title           relayd API
// @version         1.0
// @description     HTTP API for a single-channel RTMP relay with a filler loop and an LRU video cache.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
