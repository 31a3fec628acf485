// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

// Package lua loads WorkTools plugins written in Lua.
//
// A plugin script returns a table (or assigns the global "plugin") holding
// its metadata and hooks:
//
//	local p = { name = "notes", category = "text", version = "1.2.0" }
//
//	function p:on_activate()
//	    worktools.log("notes ready")
//	end
//
//	function p:save_state()
//	    return { cursor = self.cursor }
//	end
//
//	return p
//
// Every hook is optional and receives the table as self. Scripts run in a
// state with only the base, table, string and math libraries opened.
package lua
