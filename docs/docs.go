// Package docs registers the OpenAPI document served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/devices": {
            "get": {"tags": ["Devices"], "summary": "List connected devices", "produces": ["application/json"], "responses": {"200": {"description": "Connected devices"}}}
        },
        "/devices/connect": {
            "post": {
                "tags": ["Devices"], "summary": "Connect a device",
                "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/model.DeviceConfig"}}],
                "responses": {"200": {"description": "Device connected"}, "400": {"description": "Invalid config"}, "422": {"description": "Unknown protocol"}, "502": {"description": "Device unreachable or initialization failed"}}
            }
        },
        "/devices/test": {
            "post": {
                "tags": ["Devices"], "summary": "Test a device connection",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/model.DeviceConfig"}}],
                "responses": {"200": {"description": "Device reachable"}, "502": {"description": "Device unreachable"}}
            }
        },
        "/devices/{device_id}/disconnect": {
            "post": {"tags": ["Devices"], "summary": "Disconnect a device", "parameters": [{"in": "path", "name": "device_id", "type": "string", "required": true}], "responses": {"200": {"description": "Device disconnected"}}}
        },
        "/devices/{device_id}/status": {
            "get": {"tags": ["Devices"], "summary": "Device status", "parameters": [{"in": "path", "name": "device_id", "type": "string", "required": true}], "responses": {"200": {"description": "Device status"}}}
        },
        "/devices/{device_id}/transactions": {
            "post": {
                "tags": ["Operations"], "summary": "Process a transaction",
                "parameters": [
                    {"in": "path", "name": "device_id", "type": "string", "required": true},
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/model.TransactionRequest"}}
                ],
                "responses": {"200": {"description": "Transaction finished"}, "404": {"description": "Device not connected"}, "409": {"description": "Device busy"}, "422": {"description": "Transaction type not supported"}}
            }
        },
        "/devices/{device_id}/x-report": {
            "post": {"tags": ["Operations"], "summary": "X-report", "parameters": [{"in": "path", "name": "device_id", "type": "string", "required": true}], "responses": {"200": {"description": "X-report printed"}, "422": {"description": "Device has no X-report"}}}
        },
        "/devices/{device_id}/settlement": {
            "post": {"tags": ["Operations"], "summary": "End-of-day settlement", "parameters": [{"in": "path", "name": "device_id", "type": "string", "required": true}], "responses": {"200": {"description": "Settlement finished"}}}
        },
        "/devices/{device_id}/raw": {
            "post": {
                "tags": ["Operations"], "summary": "Send raw bytes",
                "parameters": [
                    {"in": "path", "name": "device_id", "type": "string", "required": true},
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/handler.RawRequest"}}
                ],
                "responses": {"200": {"description": "Bytes sent"}}
            }
        },
        "/devices/{device_id}/fiscal-receipt": {
            "post": {
                "tags": ["Operations"], "summary": "Issue a fiscal receipt",
                "parameters": [
                    {"in": "path", "name": "device_id", "type": "string", "required": true},
                    {"in": "body", "name": "request", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {"200": {"description": "Receipt issued"}, "400": {"description": "Invalid order"}}
            }
        },
        "/devices/{device_id}/operations": {
            "get": {
                "tags": ["Operations"], "summary": "Operation journal",
                "parameters": [
                    {"in": "path", "name": "device_id", "type": "string", "required": true},
                    {"in": "query", "name": "limit", "type": "integer", "default": 50}
                ],
                "responses": {"200": {"description": "Journal rows"}}
            }
        },
        "/drawer/profiles": {
            "get": {"tags": ["Peripherals"], "summary": "List drawer profiles", "responses": {"200": {"description": "Profiles"}}}
        },
        "/drawer/{profile_id}/kick": {
            "post": {"tags": ["Peripherals"], "summary": "Open a cash drawer", "parameters": [{"in": "path", "name": "profile_id", "type": "string", "required": true}], "responses": {"200": {"description": "Kick outcome"}, "404": {"description": "Unknown profile"}}}
        },
        "/loyalty/tap": {
            "post": {"tags": ["Peripherals"], "summary": "Loyalty card tap", "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/handler.TapRequest"}}], "responses": {"200": {"description": "Tap outcome"}}}
        },
        "/display": {
            "post": {"tags": ["Peripherals"], "summary": "Customer display text", "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/handler.DisplayRequest"}}], "responses": {"200": {"description": "Displayed"}, "422": {"description": "No display configured"}}}
        },
        "/discovery/serial-ports": {
            "get": {"tags": ["Discovery"], "summary": "List serial ports", "responses": {"200": {"description": "Serial ports"}}}
        },
        "/discovery/probe": {
            "post": {"tags": ["Discovery"], "summary": "Probe a host", "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/service.ProbeRequest"}}], "responses": {"200": {"description": "Open ports"}}}
        }
    },
    "definitions": {
        "model.DeviceConfig": {
            "type": "object",
            "required": ["device_id", "protocol", "connection_type"],
            "properties": {
                "device_id": {"type": "string"},
                "protocol": {"type": "string", "enum": ["FISCAL_ESCPOS", "ZVT", "PAX"]},
                "connection_type": {"type": "string", "enum": ["SERIAL", "TCP"]},
                "host": {"type": "string"},
                "port": {"type": "integer"},
                "serial_port": {"type": "string"},
                "baud_rate": {"type": "integer"}
            }
        },
        "model.TransactionRequest": {
            "type": "object",
            "required": ["transaction_type"],
            "properties": {
                "transaction_id": {"type": "string"},
                "transaction_type": {"type": "string"},
                "amount": {"type": "integer"},
                "currency": {"type": "string"},
                "order_id": {"type": "string"},
                "tip_amount": {"type": "integer"},
                "original_transaction_ref": {"type": "string"}
            }
        },
        "handler.RawRequest": {"type": "object", "required": ["data"], "properties": {"data": {"type": "string", "format": "byte"}}},
        "handler.TapRequest": {"type": "object", "required": ["card_id"], "properties": {"card_id": {"type": "string"}}},
        "handler.DisplayRequest": {"type": "object", "properties": {"line1": {"type": "string"}, "line2": {"type": "string"}}},
        "service.ProbeRequest": {"type": "object", "required": ["host"], "properties": {"host": {"type": "string"}, "ports": {"type": "array", "items": {"type": "integer"}}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:8084",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "POS Device Service API",
	Description:      "Local bridge between POS software and fiscal printers, payment terminals and peripherals",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
