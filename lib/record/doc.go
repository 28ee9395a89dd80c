/*
Package record defines the three game-state record kinds phantom persists.

  - Object: type, position and rotation of a game object
  - Message: an integer-coded message at a position
  - Phantom: an ordered trail of string pairs

Position and rotation travel as "x,y,z" strings and are stored unchanged. ParseVector
checks that such a string holds exactly three finite numbers. Validate on each kind
returns ValidationErrors whose Loc paths match the JSON request body.
*/
package record
