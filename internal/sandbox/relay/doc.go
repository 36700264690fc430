/*
Package relay carries console output from a preview document back to the
workspace that produced it.

The console shim posts {type:"console", method, args, file} and
{type:"loaded"} to /sandbox/relay/<run>?token=<token>. Each run gets its
own token when the document is rendered; a message is accepted only when
the token matches and the request origin is allowed.

Args are joined with a single space. String arguments are used verbatim,
everything else is rendered as compact JSON.
*/
package relay
