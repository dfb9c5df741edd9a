package main

import (
	"context"
	"embed"
	"runtime"

	"github.com/freesam77/airtable-clone-sub001/app"
	"github.com/freesam77/airtable-clone-sub001/app/settings"
	"github.com/freesam77/airtable-clone-sub001/app/sync"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/menu"
	"github.com/wailsapp/wails/v2/pkg/menu/keys"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	wruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	// Create an instance of the app structure
	appInstance := app.NewApp()
	settingsService := settings.NewSettingsService()
	// Inject cache manager (app) so settings service can resize/clear the
	// view cache when needed
	settingsService.SetCacheManager(appInstance)
	syncClient := sync.NewClient()
	appInstance.SetSyncClient(syncClient)

	emit := func(event string) func(*menu.CallbackData) {
		return func(_ *menu.CallbackData) {
			if appInstance.Ctx() != nil {
				wruntime.EventsEmit(appInstance.Ctx(), event)
			}
		}
	}

	AppMenu := menu.NewMenu()
	if runtime.GOOS == "darwin" {
		AppMenu.Append(menu.AppMenu())
	}

	FileMenu := AppMenu.AddSubmenu("File")
	FileMenu.AddText("Open Table", keys.CmdOrCtrl("o"), emit("menu:openTable"))
	FileMenu.AddSeparator()
	FileMenu.AddText("Import Rows from JSON", keys.CmdOrCtrl("i"), emit("menu:importRows"))
	FileMenu.AddText("Import Rows from Directory", keys.Combo("i", keys.CmdOrCtrlKey, keys.ShiftKey), emit("menu:importRowsFromDirectory"))
	FileMenu.AddText("Export Table Snapshot", keys.CmdOrCtrl("e"), emit("menu:exportSnapshot"))
	FileMenu.AddSeparator()
	FileMenu.AddText("Settings", keys.CmdOrCtrl(","), emit("menu:settings"))

	EditMenu := AppMenu.AddSubmenu("Edit")
	EditMenu.AddText("Undo", keys.CmdOrCtrl("z"), emit("menu:undo"))
	EditMenu.AddText("Redo", keys.Combo("z", keys.CmdOrCtrlKey, keys.ShiftKey), emit("menu:redo"))
	EditMenu.AddSeparator()
	EditMenu.AddText("Copy", keys.CmdOrCtrl("c"), emit("menu:copy"))
	EditMenu.AddText("Paste", keys.CmdOrCtrl("v"), emit("menu:paste"))

	TableMenu := AppMenu.AddSubmenu("Table")
	TableMenu.AddText("Add Row", keys.CmdOrCtrl("n"), emit("menu:addRow"))
	TableMenu.AddText("Duplicate Row", keys.CmdOrCtrl("d"), emit("menu:duplicateRow"))
	TableMenu.AddText("Delete Row", nil, emit("menu:deleteRow"))
	TableMenu.AddSeparator()
	TableMenu.AddText("Add Column", nil, emit("menu:addColumn"))
	TableMenu.AddText("Rename Column", nil, emit("menu:renameColumn"))
	TableMenu.AddText("Duplicate Column", nil, emit("menu:duplicateColumn"))
	TableMenu.AddText("Delete Column", nil, emit("menu:deleteColumn"))
	TableMenu.AddSeparator()
	TableMenu.AddText("Save Now", keys.CmdOrCtrl("s"), emit("menu:flush"))

	HelpMenu := AppMenu.AddSubmenu("Help")
	HelpMenu.AddText("Shortcuts", nil, emit("menu:shortcuts"))
	HelpMenu.AddSeparator()
	HelpMenu.AddText("About", nil, emit("menu:about"))

	// Get saved window size or use defaults
	width, height, err := appInstance.GetSavedWindowSize()
	if err != nil {
		println("Warning: Failed to get saved window size, using defaults:", err.Error())
		width, height = 1280, 800
	}

	// Create application with options
	err = wails.Run(&options.App{
		Title:     "Gridbase",
		Width:     width,
		Height:    height,
		Menu:      AppMenu,
		MinWidth:  400,
		MinHeight: 300,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		BackgroundColour: &options.RGBA{R: 250, G: 250, B: 250, A: 1},
		OnStartup: func(ctx context.Context) {
			appInstance.Startup(ctx)
			settingsService.Startup(ctx)
			// Ensure instance ID is generated on first startup
			if err := settingsService.EnsureInstanceID(); err != nil {
				println("Warning: Failed to generate instance ID:", err.Error())
			}
			syncClient.Startup(ctx)
		},
		OnBeforeClose: appInstance.BeforeClose,
		Bind: []interface{}{
			appInstance,
			settingsService,
			syncClient,
		},
	})

	if err != nil {
		println("Error:", err.Error())
	}
}
