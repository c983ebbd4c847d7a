package web

// callPage is the inline browser client. Everything ships in one HTML
// document so the binary has no static asset directory to deploy.
const callPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>voiceloop</title>
<style>
  body { font-family: -apple-system, system-ui, sans-serif; background: #111; color: #eee;
         max-width: 640px; margin: 2rem auto; padding: 0 1rem; }
  h1 { font-size: 1.2rem; font-weight: 600; }
  #state { display: inline-block; padding: 2px 10px; border-radius: 10px; background: #333;
           font-size: .85rem; margin-left: .5rem; }
  #state.listening { background: #14532d; }
  #state.thinking  { background: #78350f; }
  #state.speaking  { background: #1e3a8a; }
  #log { border: 1px solid #333; border-radius: 8px; padding: 1rem; min-height: 240px;
         margin: 1rem 0; overflow-y: auto; max-height: 50vh; }
  .turn { margin: .4rem 0; }
  .caller { color: #7dd3fc; }
  .agent  { color: #d9f99d; }
  .error  { color: #fca5a5; }
  button { background: #2563eb; border: 0; color: white; padding: .5rem 1.2rem;
           border-radius: 6px; cursor: pointer; }
  button.live { background: #dc2626; }
  form { display: flex; gap: .5rem; margin-top: .5rem; }
  input { flex: 1; background: #222; color: #eee; border: 1px solid #444;
          border-radius: 6px; padding: .5rem; }
</style>
</head>
<body>
<h1>voiceloop <span id="state">off</span></h1>
<div id="log"></div>
<button id="mic">Start call</button>
<form id="typed"><input id="text" placeholder="or type instead..." autocomplete="off">
<button type="submit">Send</button></form>
<script>
const RATE = 16000;
let ws, audioCtx, processor, source, stream, live = false;
let playCtx, playTime = 0;

const log = (cls, text) => {
  const el = document.createElement('div');
  el.className = 'turn ' + cls;
  el.textContent = text;
  document.getElementById('log').appendChild(el);
  el.scrollIntoView();
};

function connect() {
  ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws/call');
  ws.onmessage = (ev) => {
    const msg = JSON.parse(ev.data);
    const d = msg.data || {};
    switch (msg.type) {
      case 'state':
        const s = document.getElementById('state');
        s.textContent = d.state; s.className = d.state;
        break;
      case 'transcript': log('caller', 'you: ' + d.text); break;
      case 'response':   log('agent', 'agent: ' + d.text); break;
      case 'error':      log('error', d.message); break;
      case 'speak':      if (d.data) playChunk(d); break;
    }
  };
  ws.onclose = () => { document.getElementById('state').textContent = 'off'; };
}

function playChunk(d) {
  if (!playCtx) playCtx = new AudioContext();
  const raw = atob(d.data);
  const pcm = new Int16Array(raw.length / 2);
  for (let i = 0; i < pcm.length; i++)
    pcm[i] = (raw.charCodeAt(i*2) | (raw.charCodeAt(i*2+1) << 8)) << 16 >> 16;
  const buf = playCtx.createBuffer(1, pcm.length, d.sample_rate || 24000);
  const ch = buf.getChannelData(0);
  for (let i = 0; i < pcm.length; i++) ch[i] = pcm[i] / 32768;
  const node = playCtx.createBufferSource();
  node.buffer = buf; node.connect(playCtx.destination);
  playTime = Math.max(playTime, playCtx.currentTime);
  node.start(playTime);
  playTime += buf.duration;
}

async function startMic() {
  stream = await navigator.mediaDevices.getUserMedia({ audio: true });
  audioCtx = new AudioContext();
  source = audioCtx.createMediaStreamSource(stream);
  processor = audioCtx.createScriptProcessor(4096, 1, 1);
  const ratio = audioCtx.sampleRate / RATE;
  processor.onaudioprocess = (e) => {
    if (!ws || ws.readyState !== 1) return;
    const input = e.inputBuffer.getChannelData(0);
    const out = new Int16Array(Math.floor(input.length / ratio));
    for (let i = 0; i < out.length; i++) {
      const v = Math.max(-1, Math.min(1, input[Math.floor(i * ratio)]));
      out[i] = v * 32767;
    }
    let bin = '';
    const bytes = new Uint8Array(out.buffer);
    for (let i = 0; i < bytes.length; i++) bin += String.fromCharCode(bytes[i]);
    ws.send(JSON.stringify({ type: 'audio', ts: Date.now(),
      data: { format: 'pcm16', sample_rate: RATE, channels: 1, data: btoa(bin) } }));
  };
  source.connect(processor);
  processor.connect(audioCtx.destination);
}

document.getElementById('mic').onclick = async (e) => {
  if (!live) {
    connect();
    await startMic();
    e.target.textContent = 'End call'; e.target.className = 'live';
    live = true;
  } else {
    if (processor) processor.disconnect();
    if (stream) stream.getTracks().forEach(t => t.stop());
    if (ws) ws.close();
    e.target.textContent = 'Start call'; e.target.className = '';
    live = false;
  }
};

document.getElementById('typed').onsubmit = (e) => {
  e.preventDefault();
  const input = document.getElementById('text');
  if (!input.value.trim()) return;
  if (!ws || ws.readyState !== 1) connect();
  const sendIt = () => ws.send(JSON.stringify({ type: 'text', ts: Date.now(),
    data: { text: input.value } }));
  ws.readyState === 1 ? sendIt() : ws.addEventListener('open', sendIt, { once: true });
  input.value = '';
};
</script>
</body>
</html>`
