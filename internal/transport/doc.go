// Package transport implements the file-based wire format shared with the
// remote Lua runtime.
//
// The remote side cannot open sockets or pipes. It can only load files
// through the game's Preload mechanism and write files the same way, so
// every message is a complete file in "preload" format:
//
//	function PreloadFiles takes nothing returns nothing
//	...
//	//!beginusercode
//	local p={} local i=function(s) table.insert(p,s) end--[[" )
//		call Preload( "]]i([[<up to 255 bytes>]])--[[" )
//		call Preload( "]]i([[<up to 255 bytes>]])--[[" )
//		call Preload( "]]BlzSetAbilityTooltip(1095656547, table.concat(p), 0)
//	//!endusercode
//	...
//
// A single Preload call cannot carry more than 255 bytes, so payloads are
// split into segments and reassembled in file order by the reader.
//
// # Files
//
// All files live in one shared directory (see Dir):
//
//   - in<N>.txt               default-channel request N
//   - bp_in_<thread>_<N>.txt  breakpoint-channel request N for a halted thread
//   - out.txt                 the shared response, "<channel>:<N>" FieldSep result
//   - bp_threads.txt          newline separated ids of halted threads
//   - bp_data_<thread>.txt    halt record, key FieldSep value FieldSep ...
//
// Responses carry a correlation tag so a late answer to an abandoned
// request can never be mistaken for the answer to a newer one.
package transport
