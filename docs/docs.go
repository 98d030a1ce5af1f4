// Package docs registers the generated OpenAPI spec swaggo/http-swagger
// serves at /swagger/*; this file takes the place of what `swag init`
// would emit from the handler doc comments in internal/authority/http.go.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "{{.Title}}",
        "description": "{{.Description}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/v2/games": {
            "post": {
                "tags": ["Games"],
                "summary": "Create a game",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v2/games/{game_id}": {
            "get": {
                "tags": ["Games"],
                "summary": "Fetch a game's authoritative snapshot",
                "parameters": [{"name": "game_id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v2/games/{game_id}/start": {
            "post": {
                "tags": ["Games"],
                "summary": "Start a created game",
                "parameters": [{"name": "game_id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v2/games/{game_id}/snapshot": {
            "get": {
                "tags": ["Watcher"],
                "summary": "Read a game's watcher snapshot",
                "parameters": [{"name": "game_id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}}
            }
        }
    }
}`

// SwaggerInfo holds exported swagger metadata, in the shape swag init
// would generate it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Cowboy Game Backend API",
	Description:      "Multiplayer turn-based grid combat game authority, pipeline, timer, bot and watcher services.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
