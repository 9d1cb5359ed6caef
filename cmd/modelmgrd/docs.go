package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           modelmgr API
// @version         1.0
// @description     HTTP API for model download and lifecycle management.
//
// @contact.name   modelmgr maintainers
// @contact.url    https://github.com/your-org/modelmgr
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
