//go:build js && wasm

package main

import (
	"encoding/json"
	"fmt"
	"syscall/js"
	"time"

	"github.com/jun/scandrive/internal/adapter"
	"github.com/jun/scandrive/internal/capture"
	"github.com/jun/scandrive/internal/model"
	"github.com/jun/scandrive/internal/scannereffect"
	"github.com/jun/scandrive/internal/syncplan"
)

func point(v js.Value) capture.Point {
	return capture.Point{X: v.Get("x").Float(), Y: v.Get("y").Float()}
}

func pointObject(p capture.Point) js.Value {
	obj := js.Global().Get("Object").New()
	obj.Set("x", p.X)
	obj.Set("y", p.Y)
	return obj
}

func stringSlice(v js.Value) []string {
	out := make([]string, v.Length())
	for i := range out {
		out[i] = v.Index(i).String()
	}
	return out
}

func main() {
	// format: rescaleCorners({topLeft, topRight, bottomRight, bottomLeft}, factor) -> object
	rescaleCornersFunc := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) != 2 {
			return nil
		}
		c := capture.Corners{
			TopLeft:     point(args[0].Get("topLeft")),
			TopRight:    point(args[0].Get("topRight")),
			BottomRight: point(args[0].Get("bottomRight")),
			BottomLeft:  point(args[0].Get("bottomLeft")),
		}.Scale(args[1].Float())

		obj := js.Global().Get("Object").New()
		obj.Set("topLeft", pointObject(c.TopLeft))
		obj.Set("topRight", pointObject(c.TopRight))
		obj.Set("bottomRight", pointObject(c.BottomRight))
		obj.Set("bottomLeft", pointObject(c.BottomLeft))
		return obj
	})

	// format: isTokenValid(accessToken string, expiryMs number) -> bool
	isTokenValidFunc := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) != 2 {
			return false
		}
		tok := model.OAuthToken{
			AccessToken: args[0].String(),
			ExpiresAt:   time.UnixMilli(int64(args[1].Float())),
		}
		return tok.ValidAt(time.Now())
	})

	// format: scannerEffectDefaults() -> object
	defaultsFunc := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		data, err := json.Marshal(scannereffect.Defaults())
		if err != nil {
			return nil
		}
		return js.Global().Get("JSON").Call("parse", string(data))
	})

	// format: pendingUploads(remoteNames []string, localNames []string) -> number
	pendingUploadsFunc := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) != 2 {
			return 0
		}
		existing := make(map[string]struct{})
		for _, name := range stringSlice(args[0]) {
			existing[name] = struct{}{}
		}
		var stubs []adapter.FileStub
		for _, name := range stringSlice(args[1]) {
			stubs = append(stubs, adapter.FileStub{Name: name})
		}
		return syncplan.Pending(syncplan.Plan(existing, stubs))
	})

	js.Global().Set("rescaleCorners", rescaleCornersFunc)
	js.Global().Set("isTokenValid", isTokenValidFunc)
	js.Global().Set("scannerEffectDefaults", defaultsFunc)
	js.Global().Set("pendingUploads", pendingUploadsFunc)

	fmt.Println("ScanDrive Core Wasm Initialized")

	// Returning would exit the Wasm module.
	select {}
}
